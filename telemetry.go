package otpflow

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/MrEthical07/otpflow/internal/telemetry"
)

// TelemetryEvent is one named flow event. Email carries the bound identity.
type TelemetryEvent = telemetry.Event

// TelemetrySink receives flow events. Emit runs on the dispatcher goroutine;
// a slow or panicking sink never affects the flow.
type TelemetrySink = telemetry.Sink

// Event names.
const (
	EventOTPSent               = "otp_sent"
	EventOTPVerified           = "otp_verified"
	EventOTPVerificationFailed = "otp_verification_failed"
	EventOTPResent             = "otp_resent"
	EventOTPExpired            = "otp_expired"
	EventMaxAttemptsExceeded   = "max_attempts_exceeded"
	EventSessionStarted        = "session_started"
	EventSessionEnded          = "session_ended"
)

// Event parameter keys.
const (
	ParamErrorType       = "error_type"
	ParamAttemptCount    = "attempt_count"
	ParamSessionDuration = "session_duration"
)

// NoOpSink drops events.
type NoOpSink = telemetry.NoOpSink

// ChannelSink writes events into a buffered channel.
type ChannelSink struct {
	events chan TelemetryEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan TelemetryEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event TelemetryEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan TelemetryEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event TelemetryEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// SlogSink logs each event at info level.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink returns a sink writing to logger, or slog.Default when nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Emit(ctx context.Context, event TelemetryEvent) {
	attrs := make([]slog.Attr, 0, len(event.Params)+2)
	attrs = append(attrs, slog.String("event", event.Name), slog.String("email", event.Email))
	for k, v := range event.Params {
		attrs = append(attrs, slog.String(k, v))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "otpflow: telemetry", attrs...)
}
