package backend

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jo-hoe/bedready/internal/backend/commandstructure"
	"github.com/jo-hoe/bedready/internal/backend/imageprocessing"
	"github.com/jo-hoe/bedready/internal/backend/settings"
	"github.com/jo-hoe/bedready/internal/backend/storage"
	"github.com/jo-hoe/bedready/internal/core"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// APIKeyHeader carries the key when the service is configured with one
const APIKeyHeader = "X-Api-Key"

type APIService struct {
	config      *core.ServiceConfig
	coreService *core.CoreService
}

type errorResponse struct {
	Error string `json:"error"`
}

type commandRequest struct {
	Command string `validate:"required"`
}

type atCommandRequest struct {
	Command    string `json:"command" validate:"required"`
	Parameters string `json:"parameters"`
}

type eventRequest struct {
	Event string `json:"event" validate:"required"`
}

type eventResponse struct {
	Event    string `json:"event"`
	Notified bool   `json:"notified"`
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return &APIService{
		config:      config,
		coreService: coreService,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.GET("/probe", func(c echo.Context) error {
		return c.String(http.StatusOK, "bedready is running")
	})

	protected := e.Group("")
	if s.config.APIKey != "" {
		protected.Use(s.keyAuth())
	}

	protected.POST("/api/command", s.commandHandler)
	protected.GET("/api/commands", s.listCommandsHandler)
	protected.GET("/api/settings", s.getSettingsHandler)
	protected.PUT("/api/settings", s.putSettingsHandler)
	protected.POST("/api/atcommand", s.atCommandHandler)
	protected.POST("/api/events", s.eventHandler)
	protected.GET("/images/*", s.imageHandler)
	protected.GET("/thumbnails/:filename", s.thumbnailHandler)
	protected.GET("/ws", echo.WrapHandler(s.coreService.Hub()))
}

func (s *APIService) keyAuth() echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:" + APIKeyHeader + ",query:apikey",
		Validator: func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(s.config.APIKey)) == 1, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing api key")
		},
	})
}

// commandHandler accepts {"command": name, ...params}. Command failures are
// reported as {"error": ...} with status 200.
func (s *APIService) commandHandler(c echo.Context) error {
	params := map[string]any{}
	if err := c.Bind(&params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "received invalid request body")
	}
	request := commandRequest{Command: commandstructure.GetStringParam(params, "command", "")}
	if err := c.Validate(&request); err != nil {
		return err
	}
	delete(params, "command")

	result, err := s.coreService.ExecuteCommand(c.Request().Context(), request.Command, params)
	if err != nil {
		return c.JSON(http.StatusOK, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *APIService) listCommandsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.coreService.Commands())
}

func (s *APIService) getSettingsHandler(c echo.Context) error {
	current, err := s.coreService.Settings()
	if err != nil {
		return c.JSON(http.StatusOK, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, current)
}

func (s *APIService) putSettingsHandler(c echo.Context) error {
	var next settings.Settings
	if err := c.Bind(&next); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "received invalid request body")
	}
	if err := c.Validate(&next); err != nil {
		return err
	}

	saved, err := s.coreService.SaveSettings(next)
	if errors.Is(err, settings.ErrVersionConflict) {
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusOK, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, saved)
}

func (s *APIService) atCommandHandler(c echo.Context) error {
	var request atCommandRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "received invalid request body")
	}
	if err := c.Validate(&request); err != nil {
		return err
	}

	// the check must finish even if the caller hangs up, the job is held on its outcome
	ctx := context.WithoutCancel(c.Request().Context())
	result, err := s.coreService.ProcessAtCommand(ctx, request.Command, request.Parameters)
	if err != nil {
		return c.JSON(http.StatusOK, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *APIService) eventHandler(c echo.Context) error {
	var request eventRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "received invalid request body")
	}
	if err := c.Validate(&request); err != nil {
		return err
	}

	notified, err := s.coreService.HandlePrintEvent(c.Request().Context(), request.Event)
	if err != nil {
		return c.JSON(http.StatusOK, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, eventResponse{Event: request.Event, Notified: notified})
}

// imageHandler serves a stored image as a download. Hidden names, escapes and
// anything that is not a stored image answer 404.
func (s *APIService) imageHandler(c echo.Context) error {
	filename, err := url.PathUnescape(c.Param("*"))
	if err != nil || isHidden(filename) {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	path, err := s.coreService.Catalog().Resolve(filename)
	if err != nil || !strings.EqualFold(filepath.Ext(path), storage.ImageExtension) {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	return c.Attachment(path, filepath.Base(path))
}

func (s *APIService) thumbnailHandler(c echo.Context) error {
	filename := c.Param("filename")
	if isHidden(filename) {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	width := uint64(imageprocessing.DefaultThumbnailWidth)
	if raw := c.QueryParam("width"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || parsed == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "width must be a positive integer")
		}
		width = parsed
	}

	thumbnail, err := s.coreService.Thumbnail(filename, uint(width))
	if errors.Is(err, storage.ErrPathEscape) || errors.Is(err, storage.ErrNotAFile) {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	if err != nil {
		return c.JSON(http.StatusOK, errorResponse{Error: err.Error()})
	}
	return c.Blob(http.StatusOK, "image/jpeg", thumbnail)
}

func isHidden(filename string) bool {
	for _, part := range strings.FieldsFunc(filename, func(r rune) bool { return r == '/' || r == '\\' }) {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
