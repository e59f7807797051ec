// Package prometheus renders otpflow metrics in Prometheus text exposition format.
//
// [NewPrometheusExporter] accepts an [otpflow.Controller] and exposes an [http.Handler].
// Counter names are prefixed otpflow_*_total; OTPError counts share
// otpflow_otp_errors_total with a kind label, and the single histogram is
// otpflow_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate controller state.
package prometheus
