package otel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/otpflow"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot otpflow.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() otpflow.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := otpflow.MetricsSnapshot{
		Counters:     make(map[otpflow.MetricID]uint64, len(f.snapshot.Counters)),
		Errors:       make(map[otpflow.ErrorKind]uint64, len(f.snapshot.Errors)),
		Histograms:   make(map[otpflow.MetricID][]uint64, len(f.snapshot.Histograms)),
		HistogramSum: make(map[otpflow.MetricID]time.Duration, len(f.snapshot.HistogramSum)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, v := range f.snapshot.Errors {
		out.Errors[k] = v
	}
	for k, v := range f.snapshot.HistogramSum {
		out.HistogramSum[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) TelemetryDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReaderMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

// int64Value returns the data point of name whose attributes include
// key=val, or the first data point when key is empty.
func int64Value(t *testing.T, rm metricdata.ResourceMetrics, name, key, val string) (int64, bool) {
	t.Helper()
	match := func(set attribute.Set) bool {
		if key == "" {
			return true
		}
		v, ok := set.Value(attribute.Key(key))
		return ok && v.AsString() == val
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					if match(dp.Attributes) {
						return dp.Value, true
					}
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					if match(dp.Attributes) {
						return dp.Value, true
					}
				}
			}
		}
	}
	return 0, false
}

func float64Value(rm metricdata.ResourceMetrics, name string) (float64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if g, ok := m.Data.(metricdata.Gauge[float64]); ok && m.Name == name && len(g.DataPoints) > 0 {
				return g.DataPoints[0].Value, true
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newReaderMeter()
	meter := provider.Meter("otpflow-test")

	src := &fakeSource{
		snapshot: otpflow.MetricsSnapshot{
			Counters: map[otpflow.MetricID]uint64{
				otpflow.MetricOTPSent: 3,
			},
			Errors: map[otpflow.ErrorKind]uint64{
				otpflow.ErrorIncorrect: 4,
				otpflow.ErrorExpired:   2,
			},
			Histograms: map[otpflow.MetricID][]uint64{
				otpflow.MetricValidateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
			HistogramSum: map[otpflow.MetricID]time.Duration{
				otpflow.MetricValidateLatency: 1500 * time.Millisecond,
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	cases := []struct {
		name, key, val string
		want           int64
	}{
		{"otpflow_otp_sent_total", "", "", 3},
		{"otpflow_telemetry_dropped_total", "", "", 1},
		{"otpflow_otp_errors_total", "kind", "Incorrect", 4},
		{"otpflow_otp_errors_total", "kind", "Expired", 2},
		{"otpflow_otp_errors_total", "kind", "NotFound", 0},
		{"otpflow_validate_latency_seconds_bucket", "le", "0.005", 1},
		{"otpflow_validate_latency_seconds_bucket", "le", "0.1", 5},
		{"otpflow_validate_latency_seconds_bucket", "le", "+Inf", 8},
		{"otpflow_validate_latency_seconds_count", "", "", 8},
	}
	for _, tc := range cases {
		got, ok := int64Value(t, rm, tc.name, tc.key, tc.val)
		if !ok {
			t.Fatalf("metric %s{%s=%q} not collected", tc.name, tc.key, tc.val)
		}
		if got != tc.want {
			t.Fatalf("metric %s{%s=%q}: expected %d, got %d", tc.name, tc.key, tc.val, tc.want, got)
		}
	}

	if sum, ok := float64Value(rm, "otpflow_validate_latency_seconds_sum"); !ok || sum != 1.5 {
		t.Fatalf("expected latency sum 1.5s, got %v (collected=%v)", sum, ok)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReaderMeter()
	meter := provider.Meter("otpflow-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	if _, err := NewOTelExporter(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource for nil controller, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReaderMeter()
	meter := provider.Meter("otpflow-test")

	src := &fakeSource{
		snapshot: otpflow.MetricsSnapshot{
			Counters: map[otpflow.MetricID]uint64{
				otpflow.MetricOTPSent: 1,
			},
			Histograms: map[otpflow.MetricID][]uint64{
				otpflow.MetricValidateLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[otpflow.MetricOTPSent] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
