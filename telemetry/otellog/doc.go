// Package otellog forwards otpflow telemetry events to an OpenTelemetry
// LoggerProvider as log records.
//
// Each event becomes one record at INFO severity. The event name is the
// record body and is repeated in the "event" attribute; the bound identity
// and every event parameter become string attributes.
package otellog
