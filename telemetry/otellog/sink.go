package otellog

import (
	"context"
	"sort"
	"time"

	"github.com/MrEthical07/otpflow"
	otellog "go.opentelemetry.io/otel/log"
)

// ScopeName is the instrumentation scope used for emitted records.
const ScopeName = "github.com/MrEthical07/otpflow"

// recordEmitter is the part of an OTel Logger the sink needs.
type recordEmitter interface {
	Emit(ctx context.Context, record otellog.Record)
}

// Sink is an [otpflow.TelemetrySink] that emits OTel log records.
type Sink struct {
	logger recordEmitter
	now    func() time.Time
}

// NewSink returns a sink logging through provider. A nil provider yields a
// sink that drops events.
func NewSink(provider otellog.LoggerProvider) *Sink {
	if provider == nil {
		return &Sink{now: time.Now}
	}
	return &Sink{logger: provider.Logger(ScopeName), now: time.Now}
}

// Emit converts event to a log record. Params are added in key order.
func (s *Sink) Emit(ctx context.Context, event otpflow.TelemetryEvent) {
	if s == nil || s.logger == nil {
		return
	}

	var rec otellog.Record
	ts := event.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	rec.SetTimestamp(ts.UTC())
	rec.SetObservedTimestamp(s.now().UTC())
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetSeverityText("INFO")
	rec.SetBody(otellog.StringValue(event.Name))

	rec.AddAttributes(
		otellog.String("event", event.Name),
		otellog.String("email", event.Email),
	)
	if len(event.Params) > 0 {
		keys := make([]string, 0, len(event.Params))
		for k := range event.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			rec.AddAttributes(otellog.String(k, event.Params[k]))
		}
	}

	s.logger.Emit(ctx, rec)
}
