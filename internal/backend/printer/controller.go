package printer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrPrinter is returned when the printer host rejects a job command
var ErrPrinter = errors.New("printer command failed")

// Controller acts on the running print job when the bed is not clear
type Controller interface {
	PauseJob(ctx context.Context) error
	CancelJob(ctx context.Context) error
}

type jobCommand struct {
	Command string `json:"command"`
	Action  string `json:"action,omitempty"`
}

// HTTPController drives the job endpoint of a printer host
type HTTPController struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPController(baseURL, apiKey string, timeout time.Duration) *HTTPController {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPController{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPController) PauseJob(ctx context.Context) error {
	return c.send(ctx, jobCommand{Command: "pause", Action: "pause"})
}

func (c *HTTPController) CancelJob(ctx context.Context) error {
	return c.send(ctx, jobCommand{Command: "cancel"})
}

func (c *HTTPController) send(ctx context.Context, command jobCommand) error {
	body, err := json.Marshal(command)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/job", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPrinter, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPrinter, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned status %d", ErrPrinter, command.Command, resp.StatusCode)
	}

	slog.Info("sent job command to printer", "command", command.Command)
	return nil
}

// LogController only logs the requested action, used when no printer host is configured
type LogController struct{}

func (LogController) PauseJob(context.Context) error {
	slog.Warn("bed not clear, pause requested but no printer is configured")
	return nil
}

func (LogController) CancelJob(context.Context) error {
	slog.Warn("bed not clear, cancel requested but no printer is configured")
	return nil
}
