// Package otel binds otpflow counters and histograms to OpenTelemetry instruments.
//
// [NewOTelExporter] registers an Int64ObservableCounter per counter, one
// otpflow_otp_errors_total counter with a "kind" attribute, and bucket, count
// and sum gauges for the latency histogram (buckets carry an "le" attribute).
// A single callback reads [otpflow.Controller.MetricsSnapshot] on each
// collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate controller state.
package otel
