package telemetry

import (
	"context"
	"time"
)

// Event is one named flow event.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Name      string            `json:"event"`
	Email     string            `json:"email"`
	Params    map[string]string `json:"params,omitempty"`
}

// Sink receives emitted events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}
