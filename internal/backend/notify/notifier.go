package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Notifier delivers an event to whoever listens for bed check outcomes
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Event is a payload sent to listeners. Name identifies the kind of event.
type Event interface {
	Name() string
}

// BedClearEvent reports the verdict of a bed check
type BedClearEvent struct {
	BedClear bool   `json:"bed_clear"`
	Error    string `json:"error,omitempty"`
}

func (BedClearEvent) Name() string { return "bed_clear" }

// ReferenceSetEvent reports the outcome of capturing a new reference image
type ReferenceSetEvent struct {
	ReferenceSet   bool   `json:"reference_set"`
	ReferenceImage string `json:"reference_image,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (ReferenceSetEvent) Name() string { return "reference_set" }

// Multi fans an event out to every notifier and joins their errors
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes events to the structured log
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, event Event) error {
	slog.Info("notification", "event", event.Name(), "payload", event)
	return nil
}
