package otellog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/otpflow"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

type memoryExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *memoryExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *memoryExporter) Shutdown(context.Context) error   { return nil }
func (e *memoryExporter) ForceFlush(context.Context) error { return nil }

func (e *memoryExporter) snapshot() []sdklog.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]sdklog.Record, len(e.records))
	copy(out, e.records)
	return out
}

func newProvider(t *testing.T) (*sdklog.LoggerProvider, *memoryExporter) {
	t.Helper()
	exp := &memoryExporter{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider, exp
}

func attributes(r sdklog.Record) map[string]string {
	out := make(map[string]string)
	r.WalkAttributes(func(kv otellog.KeyValue) bool {
		out[kv.Key] = kv.Value.AsString()
		return true
	})
	return out
}

func TestNilProviderDropsEvents(t *testing.T) {
	sink := NewSink(nil)
	sink.Emit(context.Background(), otpflow.TelemetryEvent{Name: otpflow.EventOTPSent})

	var nilSink *Sink
	nilSink.Emit(context.Background(), otpflow.TelemetryEvent{Name: otpflow.EventOTPSent})
}

func TestEmitMapsEventToRecord(t *testing.T) {
	provider, exp := newProvider(t)
	sink := NewSink(provider)

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sink.Emit(context.Background(), otpflow.TelemetryEvent{
		Timestamp: at,
		Name:      otpflow.EventOTPVerificationFailed,
		Email:     "a@b.com",
		Params:    map[string]string{otpflow.ParamErrorType: "Incorrect"},
	})

	records := exp.snapshot()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if got := rec.Body().AsString(); got != otpflow.EventOTPVerificationFailed {
		t.Fatalf("body = %q", got)
	}
	if !rec.Timestamp().Equal(at) {
		t.Fatalf("timestamp = %v, want %v", rec.Timestamp(), at)
	}
	if rec.Severity() != otellog.SeverityInfo {
		t.Fatalf("severity = %v", rec.Severity())
	}

	attrs := attributes(rec)
	want := map[string]string{
		"event":                otpflow.EventOTPVerificationFailed,
		"email":                "a@b.com",
		otpflow.ParamErrorType: "Incorrect",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %q = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestZeroTimestampUsesClock(t *testing.T) {
	provider, exp := newProvider(t)
	sink := NewSink(provider)
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	sink.now = func() time.Time { return fixed }

	sink.Emit(context.Background(), otpflow.TelemetryEvent{Name: otpflow.EventOTPSent, Email: "a@b.com"})

	records := exp.snapshot()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if !records[0].Timestamp().Equal(fixed) {
		t.Fatalf("timestamp = %v, want %v", records[0].Timestamp(), fixed)
	}
}

func TestControllerEventsReachProvider(t *testing.T) {
	provider, exp := newProvider(t)

	ctrl, err := otpflow.New().
		WithTelemetrySink(NewSink(provider)).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ctrl.HandleIntent(ctx, otpflow.SendOTP{Identity: "ada@example.com"}); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	// Close drains the telemetry buffer.
	ctrl.Close()

	records := exp.snapshot()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	attrs := attributes(records[0])
	if attrs["event"] != otpflow.EventOTPSent || attrs["email"] != "ada@example.com" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
}
