package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/otpflow"
	"github.com/MrEthical07/otpflow/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// MetricsSource supplies the values an exporter observes.
type MetricsSource interface {
	MetricsSnapshot() otpflow.MetricsSnapshot
	TelemetryDropped() uint64
}

// OTelExporter publishes flow metrics through observable OTel instruments.
// Labelled series carry their label as an attribute: OTPError counts use
// "kind" and latency buckets use "le".
type OTelExporter struct {
	source       MetricsSource
	registration metric.Registration
	observers    []func(metric.Observer, otpflow.MetricsSnapshot)
}

// NewOTelExporter registers instruments on meter that read from ctrl.
func NewOTelExporter(meter metric.Meter, ctrl *otpflow.Controller) (*OTelExporter, error) {
	if ctrl == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, ctrl)
}

// NewOTelExporterFromSource registers instruments on meter that read from source.
func NewOTelExporterFromSource(meter metric.Meter, source MetricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		id := def.ID
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		observables = append(observables, ins)
		e.observers = append(e.observers, func(o metric.Observer, s otpflow.MetricsSnapshot) {
			o.ObserveInt64(ins, int64(s.Counters[id]))
		})
	}

	errs, err := meter.Int64ObservableCounter(internaldefs.ErrorsName, metric.WithDescription(internaldefs.ErrorsHelp))
	if err != nil {
		return nil, fmt.Errorf("create observable counter %s: %w", internaldefs.ErrorsName, err)
	}
	observables = append(observables, errs)
	kindAttrs := make([]metric.ObserveOption, len(internaldefs.ErrorKinds))
	for i, k := range internaldefs.ErrorKinds {
		kindAttrs[i] = metric.WithAttributes(attribute.String(internaldefs.ErrorKindLabel, k.String()))
	}
	e.observers = append(e.observers, func(o metric.Observer, s otpflow.MetricsSnapshot) {
		for i, k := range internaldefs.ErrorKinds {
			o.ObserveInt64(errs, int64(s.Errors[k]), kindAttrs[i])
		}
	})

	les := internaldefs.BucketLabels()
	leAttrs := make([]metric.ObserveOption, len(les))
	for i, le := range les {
		leAttrs[i] = metric.WithAttributes(attribute.String("le", le))
	}
	for _, def := range internaldefs.HistogramDefs {
		id := def.ID
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket", metric.WithDescription("Cumulative histogram bucket count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram bucket gauge %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s: %w", def.Name, err)
		}
		sum, err := meter.Float64ObservableGauge(def.Name+"_sum", metric.WithDescription(def.Help), metric.WithUnit("s"))
		if err != nil {
			return nil, fmt.Errorf("create histogram sum gauge %s: %w", def.Name, err)
		}
		observables = append(observables, buckets, count, sum)
		e.observers = append(e.observers, func(o metric.Observer, s otpflow.MetricsSnapshot) {
			cumulative := internaldefs.Cumulative(s.Histograms[id])
			for i, v := range cumulative {
				o.ObserveInt64(buckets, int64(v), leAttrs[i])
			}
			o.ObserveInt64(count, int64(cumulative[len(cumulative)-1]))
			o.ObserveFloat64(sum, s.HistogramSum[id].Seconds())
		})
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.TelemetryDroppedName, metric.WithDescription(internaldefs.TelemetryDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("create telemetry dropped counter: %w", err)
	}
	observables = append(observables, dropped)

	e.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		snapshot := e.source.MetricsSnapshot()
		for _, observe := range e.observers {
			observe(o, snapshot)
		}
		o.ObserveInt64(dropped, int64(e.source.TelemetryDropped()))
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
