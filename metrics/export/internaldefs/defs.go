package internaldefs

import (
	"strconv"

	"github.com/MrEthical07/otpflow"
)

// CounterDef binds a counter to its exported name.
type CounterDef struct {
	ID   otpflow.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram to its exported name.
type HistogramDef struct {
	ID   otpflow.MetricID
	Name string
	Help string
}

// CounterDefs lists every unlabelled counter in output order.
var CounterDefs = []CounterDef{
	{ID: otpflow.MetricOTPSent, Name: "otpflow_otp_sent_total", Help: "Codes issued by SendOTP."},
	{ID: otpflow.MetricOTPResent, Name: "otpflow_otp_resent_total", Help: "Codes reissued by ResendOTP."},
	{ID: otpflow.MetricOTPVerified, Name: "otpflow_otp_verified_total", Help: "Successful code verifications."},
	{ID: otpflow.MetricOTPVerificationFailed, Name: "otpflow_otp_verification_failed_total", Help: "Verifications that returned Incorrect or NotFound."},
	{ID: otpflow.MetricOTPExpired, Name: "otpflow_otp_expired_total", Help: "Codes that expired before a successful verification."},
	{ID: otpflow.MetricOTPMaxAttemptsExceeded, Name: "otpflow_otp_max_attempts_exceeded_total", Help: "Codes invalidated by the attempt limit."},
	{ID: otpflow.MetricSessionStarted, Name: "otpflow_session_started_total", Help: "Sessions that became active."},
	{ID: otpflow.MetricSessionEnded, Name: "otpflow_session_ended_total", Help: "Sessions ended by logout."},
	{ID: otpflow.MetricIntentIgnored, Name: "otpflow_intent_ignored_total", Help: "Intents ignored as malformed or illegal in the current state."},
	{ID: otpflow.MetricCodeStoreFailure, Name: "otpflow_code_store_failure_total", Help: "Code store infrastructure errors."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: otpflow.MetricValidateLatency, Name: "otpflow_validate_latency_seconds", Help: "Code store Validate latency."},
}

const (
	// ErrorsName is the counter family of published OTPErrors, labelled by kind.
	ErrorsName = "otpflow_otp_errors_total"
	ErrorsHelp = "OTPError states published, by error kind."
	// ErrorKindLabel is the label carrying otpflow.ErrorKind.String().
	ErrorKindLabel = "kind"

	TelemetryDroppedName = "otpflow_telemetry_dropped_total"
	TelemetryDroppedHelp = "Telemetry events dropped by dispatcher backpressure."
)

// ErrorKinds lists the kinds exported under ErrorsName, in output order.
var ErrorKinds = []otpflow.ErrorKind{
	otpflow.ErrorIncorrect,
	otpflow.ErrorExpired,
	otpflow.ErrorMaxAttemptsExceeded,
	otpflow.ErrorNotFound,
}

// BucketLabels returns the le label of each latency bucket in seconds, ending
// with "+Inf" for the overflow bucket.
func BucketLabels() []string {
	out := make([]string, 0, len(otpflow.LatencyBounds)+1)
	for _, b := range otpflow.LatencyBounds {
		out = append(out, strconv.FormatFloat(b.Seconds(), 'g', -1, 64))
	}
	return append(out, "+Inf")
}

// Cumulative converts per-bucket counts to running totals, one per entry of
// BucketLabels. Missing buckets count as zero and extra ones are folded into
// the overflow bucket.
func Cumulative(raw []uint64) []uint64 {
	out := make([]uint64, len(otpflow.LatencyBounds)+1)
	last := len(out) - 1
	for i, v := range raw {
		if i > last {
			i = last
		}
		out[i] += v
	}
	for i := 1; i < len(out); i++ {
		out[i] += out[i-1]
	}
	return out
}
