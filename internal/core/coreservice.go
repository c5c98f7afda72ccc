package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jo-hoe/bedready/internal/backend/commandstructure"
	"github.com/jo-hoe/bedready/internal/backend/database"
	"github.com/jo-hoe/bedready/internal/backend/decision"
	"github.com/jo-hoe/bedready/internal/backend/imageprocessing"
	"github.com/jo-hoe/bedready/internal/backend/notify"
	"github.com/jo-hoe/bedready/internal/backend/printer"
	"github.com/jo-hoe/bedready/internal/backend/settings"
	"github.com/jo-hoe/bedready/internal/backend/snapshot"
	"github.com/jo-hoe/bedready/internal/backend/storage"
)

const (
	// CaptureCommand designates a fresh snapshot as the reference image
	CaptureCommand = "BEDREADY_CAPTURE"
	// CheckCommand checks the bed and holds the job when it is not clear
	CheckCommand = "BEDREADY"

	EventPrintResumed   = "PrintResumed"
	EventPrintCancelled = "PrintCancelled"
)

// ErrUnknownAtCommand is returned for text commands this service does not handle
var ErrUnknownAtCommand = errors.New("unknown text command")

// Dimensions is the pixel size of a stored image
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// checkResultEvent carries a full comparison result to subscribers
type checkResultEvent struct {
	decision.ComparisonResult
}

func (checkResultEvent) Name() string { return "bed_check" }

type Option func(*CoreService)

// WithNotifier adds a notifier to the fan-out
func WithNotifier(n notify.Notifier) Option {
	return func(s *CoreService) {
		s.notifiers = append(s.notifiers, n)
	}
}

// WithPrinter replaces the print job controller
func WithPrinter(p printer.Controller) Option {
	return func(s *CoreService) {
		s.printer = p
	}
}

// CoreService composes the bed check components for the API and the print host
type CoreService struct {
	config          *ServiceConfig
	databaseService database.DatabaseService
	catalog         *storage.Catalog
	acquirer        *snapshot.Acquirer
	retainer        *storage.Retainer
	engine          *decision.Engine
	settings        *settings.Store
	printer         printer.Controller
	hub             *notify.Hub
	redis           *notify.RedisNotifier
	notifiers       notify.Multi
	commands        *commandstructure.CommandRegistry

	// one check at a time, they share the well-known comparison file
	checkMu   sync.Mutex
	stopHub   context.CancelFunc
	hubClosed chan struct{}
}

func NewCoreService(config *ServiceConfig, options ...Option) (*CoreService, error) {
	catalog, err := storage.NewCatalog(config.DataDirectory)
	if err != nil {
		return nil, err
	}

	databaseService, err := getDatabaseService(config)
	if err != nil {
		return nil, err
	}

	acquirer := snapshot.NewAcquirer(catalog.Directory(), config.SnapshotTimeout())
	retainer := storage.NewRetainer(catalog)

	service := &CoreService{
		config:          config,
		databaseService: databaseService,
		catalog:         catalog,
		acquirer:        acquirer,
		retainer:        retainer,
		engine:          decision.NewEngine(catalog.Directory(), config.Webcam.SnapshotURL, acquirer, retainer),
		settings:        settings.NewStore(databaseService),
		hub:             notify.NewHub(),
		notifiers:       notify.Multi{notify.LogNotifier{}},
		hubClosed:       make(chan struct{}),
	}
	service.notifiers = append(service.notifiers, service.hub)

	if config.Redis.Addr != "" {
		service.redis = notify.NewRedisNotifier(notify.RedisConfig{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
			Channel:  config.Redis.Channel,
		})
		service.notifiers = append(service.notifiers, service.redis)
		pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
		if err := service.redis.Ping(pingCtx); err != nil {
			slog.Warn("redis is not reachable, notifications will fail until it is", "addr", config.Redis.Addr, "error", err)
		} else {
			slog.Info("redis notifications enabled", "addr", config.Redis.Addr)
		}
		cancelPing()
	}

	if config.Printer.BaseURL != "" {
		service.printer = printer.NewHTTPController(config.Printer.BaseURL, config.Printer.APIKey, 0)
	} else {
		service.printer = printer.LogController{}
	}

	for _, option := range options {
		option(service)
	}

	service.commands = newCommandRegistry(service)

	ctx, cancel := context.WithCancel(context.Background())
	service.stopHub = cancel
	go func() {
		defer close(service.hubClosed)
		service.hub.Run(ctx)
	}()

	slog.Info("core service initialized", "data_directory", catalog.Directory())
	return service, nil
}

func getDatabaseService(config *ServiceConfig) (database.DatabaseService, error) {
	databaseService, err := database.NewDatabase(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if !databaseService.DoesDatabaseExist() {
		_ = databaseService.Close()
		return nil, fmt.Errorf("database %s is not reachable", config.Database.Type)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)
	return databaseService, nil
}

// Close stops the notification hub and releases the database and redis connections
func (service *CoreService) Close() error {
	service.stopHub()
	<-service.hubClosed

	var errs []error
	if service.redis != nil {
		errs = append(errs, service.redis.Close())
	}
	errs = append(errs, service.databaseService.Close())
	return errors.Join(errs...)
}

// Hub returns the websocket hub subscribers connect to
func (service *CoreService) Hub() *notify.Hub {
	return service.hub
}

// Catalog returns the data directory catalog
func (service *CoreService) Catalog() *storage.Catalog {
	return service.catalog
}

// Settings returns the current settings
func (service *CoreService) Settings() (settings.Settings, error) {
	return service.settings.Load()
}

// SaveSettings stores next if it carries the current version
func (service *CoreService) SaveSettings(next settings.Settings) (settings.Settings, error) {
	return service.settings.Save(next)
}

// TakeSnapshot captures a snapshot under name and returns the refreshed catalog
func (service *CoreService) TakeSnapshot(ctx context.Context, name string) ([]string, error) {
	service.checkMu.Lock()
	defer service.checkMu.Unlock()

	if err := service.acquirer.Acquire(ctx, service.config.Webcam.SnapshotURL, name); err != nil {
		return nil, err
	}
	return service.catalog.List()
}

// CheckBed runs a comparison without retaining a debug image
func (service *CoreService) CheckBed(ctx context.Context, reference string, threshold *float64) (*decision.ComparisonResult, error) {
	return service.check(ctx, decision.Request{Reference: reference, Threshold: threshold})
}

func (service *CoreService) check(ctx context.Context, req decision.Request) (*decision.ComparisonResult, error) {
	service.checkMu.Lock()
	defer service.checkMu.Unlock()

	current, err := service.settings.Load()
	if err != nil {
		return nil, err
	}
	return service.engine.Decide(ctx, current, req)
}

func (service *CoreService) ListSnapshots() ([]string, error) {
	return service.catalog.List()
}

func (service *CoreService) ListDebugImages() ([]storage.DebugRecord, error) {
	return service.catalog.ListDebug()
}

// DeleteSnapshot removes a stored image and returns the refreshed catalog
func (service *CoreService) DeleteSnapshot(filename string) ([]string, error) {
	if err := service.catalog.Delete(filename); err != nil {
		return nil, err
	}
	return service.catalog.List()
}

// DeleteDebugImage removes a retained debug image and returns the refreshed listing
func (service *CoreService) DeleteDebugImage(filename string) ([]storage.DebugRecord, error) {
	if err := service.catalog.DeleteDebug(filename); err != nil {
		return nil, err
	}
	return service.catalog.ListDebug()
}

// ImageDimensions reads the pixel size of a stored image
func (service *CoreService) ImageDimensions(filename string) (Dimensions, error) {
	path, err := service.catalog.Resolve(filename)
	if err != nil {
		return Dimensions{}, err
	}
	width, height, err := imageprocessing.DimensionsOfFile(path)
	if err != nil {
		return Dimensions{}, fmt.Errorf("unable to read image %s: %w", filename, err)
	}
	return Dimensions{Width: width, Height: height}, nil
}

// Thumbnail returns a JPEG preview of a stored image scaled to width
func (service *CoreService) Thumbnail(filename string, width uint) ([]byte, error) {
	path, err := service.catalog.Resolve(filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotAFile, filename)
	}
	return imageprocessing.Thumbnail(data, width)
}

// Commands returns every API command with its required parameters
func (service *CoreService) Commands() map[string][]string {
	return service.commands.RequiredParams()
}

// ExecuteCommand runs a named API command
func (service *CoreService) ExecuteCommand(ctx context.Context, name string, params map[string]any) (any, error) {
	return service.commands.Execute(ctx, name, params)
}

// ProcessAtCommand handles the text commands a print job sends through the host.
// Failures are reported to subscribers as well as returned.
func (service *CoreService) ProcessAtCommand(ctx context.Context, command, parameters string) (any, error) {
	switch strings.ToUpper(strings.TrimSpace(command)) {
	case CaptureCommand:
		return service.captureReference(ctx)
	case CheckCommand:
		return service.checkAndHold(ctx, parameters)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAtCommand, command)
	}
}

func (service *CoreService) captureReference(ctx context.Context) (notify.ReferenceSetEvent, error) {
	err := func() error {
		service.checkMu.Lock()
		defer service.checkMu.Unlock()

		if err := service.acquirer.Acquire(ctx, service.config.Webcam.SnapshotURL, storage.ReferenceFilename); err != nil {
			return err
		}
		_, err := service.settings.Update(func(s *settings.Settings) {
			s.ReferenceImage = storage.ReferenceFilename
		})
		return err
	}()

	if err != nil {
		slog.Error("error setting reference image", "error", err)
		event := notify.ReferenceSetEvent{ReferenceSet: false, Error: err.Error()}
		service.notify(ctx, event)
		return event, err
	}

	slog.Info("reference image set", "filename", storage.ReferenceFilename)
	event := notify.ReferenceSetEvent{ReferenceSet: true, ReferenceImage: storage.ReferenceFilename}
	service.notify(ctx, event)
	return event, nil
}

// checkAndHold parses "[reference] [threshold]". A failed check counts as not clear.
func (service *CoreService) checkAndHold(ctx context.Context, parameters string) (*decision.ComparisonResult, error) {
	req := decision.Request{StoreDebug: true}
	fields := strings.Fields(parameters)
	if len(fields) > 0 {
		req.Reference = fields[0]
	}
	if len(fields) > 1 {
		threshold, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			err = fmt.Errorf("invalid threshold %q: %w", fields[1], err)
			service.holdJob(ctx)
			service.notify(ctx, notify.BedClearEvent{BedClear: false, Error: err.Error()})
			return nil, err
		}
		req.Threshold = &threshold
	}

	result, err := service.check(ctx, req)
	if err != nil {
		slog.Error("bed check failed", "error", err)
		service.holdJob(ctx)
		service.notify(ctx, notify.BedClearEvent{BedClear: false, Error: err.Error()})
		return nil, err
	}

	if !result.BedClear {
		service.holdJob(ctx)
	}
	service.notify(ctx, checkResultEvent{ComparisonResult: *result})
	return result, nil
}

// holdJob cancels or pauses the running job depending on the cancel_print setting
func (service *CoreService) holdJob(ctx context.Context) {
	current, err := service.settings.Load()
	if err != nil {
		slog.Error("failed to load settings, pausing job", "error", err)
		current = settings.Defaults()
	}

	if current.CancelPrint {
		err = service.printer.CancelJob(ctx)
	} else {
		err = service.printer.PauseJob(ctx)
	}
	if err != nil {
		slog.Error("failed to hold print job", "cancel", current.CancelPrint, "error", err)
	}
}

// HandlePrintEvent reports a clear bed when a job resumes, or when it was
// cancelled while the cancel_print policy is off. It returns whether a
// notification was sent.
func (service *CoreService) HandlePrintEvent(ctx context.Context, event string) (bool, error) {
	current, err := service.settings.Load()
	if err != nil {
		return false, err
	}

	if event == EventPrintResumed || (event == EventPrintCancelled && !current.CancelPrint) {
		service.notify(ctx, notify.BedClearEvent{BedClear: true})
		return true, nil
	}
	return false, nil
}

func (service *CoreService) notify(ctx context.Context, event notify.Event) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := service.notifiers.Notify(ctx, event); err != nil {
		slog.Error("failed to deliver notification", "event", event.Name(), "error", err)
	}
}
