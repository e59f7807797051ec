// Package otpflow provides the session core of a passwordless login: one-time
// codes bound to an email identity and a flow controller that walks a single
// login through EmailInput, OTPSent, OTPVerifying, OTPError and SessionActive.
//
// A [Controller] is built once through [Builder.Build] and is safe to call from
// multiple goroutines. Intents are handled one at a time; the current
// [AuthState] is published to observers after every change.
//
// # Architecture boundaries
//
// otpflow is the public surface. It exposes [Controller], [Builder], [Config],
// the [AuthState] and [Intent] variants, telemetry sinks and [MetricsSnapshot].
// Code records live in the codestore package. Timer tasks, state fan-out and
// telemetry buffering live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Render anything or know about the presentation layer beyond AuthState.
//   - Deliver codes. Generating a code is treated as a successful send.
//   - Expose Redis clients or record encodings in its public API.
//   - Import any sub-package that re-imports otpflow (no import cycles).
package otpflow
