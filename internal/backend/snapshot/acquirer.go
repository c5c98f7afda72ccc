package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jo-hoe/bedready/internal/backend/storage"
)

// DefaultTimeout bounds a single snapshot download
const DefaultTimeout = 20 * time.Second

var (
	// ErrConfiguration is returned for a missing or invalid snapshot URL or destination name
	ErrConfiguration = errors.New("missing or incorrect snapshot url in webcam settings")
	// ErrSnapshot is returned when the snapshot cannot be downloaded or saved
	ErrSnapshot = errors.New("snapshot failed")
)

// Acquirer fetches single still images from a camera endpoint into the data directory
type Acquirer struct {
	directory string
	client    *http.Client
}

// NewAcquirer creates an acquirer writing into directory. A zero timeout uses DefaultTimeout.
func NewAcquirer(directory string, timeout time.Duration) *Acquirer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Acquirer{
		directory: directory,
		client:    &http.Client{Timeout: timeout},
	}
}

// Acquire downloads sourceURL and writes the body to destinationName, replacing any existing file
func (a *Acquirer) Acquire(ctx context.Context, sourceURL, destinationName string) error {
	if sourceURL == "" || !strings.HasPrefix(sourceURL, "http") {
		return fmt.Errorf("%w: %q", ErrConfiguration, sourceURL)
	}
	if destinationName == "" {
		return fmt.Errorf("%w: no destination filename given", ErrConfiguration)
	}

	destination, err := storage.Resolve(a.directory, destinationName)
	if err != nil {
		return err
	}

	start := time.Now()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	response, err := a.client.Do(request)
	if err != nil {
		return fmt.Errorf("%w: unable to download snapshot: %v", ErrSnapshot, err)
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unable to download snapshot (status %d)", ErrSnapshot, response.StatusCode)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("%w: unable to read snapshot: %v", ErrSnapshot, err)
	}

	if err := os.WriteFile(destination, body, 0644); err != nil {
		return fmt.Errorf("%w: unable to save file %q: %v", ErrSnapshot, destinationName, err)
	}
	if info, err := os.Stat(destination); err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: unable to save file %q", ErrSnapshot, destinationName)
	}

	slog.Info("snapshot saved",
		"filename", destinationName,
		"size_bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds())

	return nil
}
