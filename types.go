package otpflow

import "time"

// AuthState is the single published state of a login flow. Implementations are
// value types; a new value replaces the previous one whole.
type AuthState interface {
	authState()
}

// EmailInput is the initial state. No identity is bound.
type EmailInput struct{}

// OTPSent means a code was issued and is still live.
type OTPSent struct {
	Identity         string
	RemainingSeconds int64
	Code             string
}

// OTPVerifying means a verification attempt is in flight. It carries the
// remaining time and code that were on display when the attempt started.
type OTPVerifying struct {
	Identity         string
	RemainingSeconds int64
	Code             string
}

// OTPError means the last attempt failed. Code is empty when no code is shown.
type OTPError struct {
	Identity string
	Kind     ErrorKind
	Code     string
}

// SessionActive means the identity is authenticated. Token is empty when
// session tokens are disabled.
type SessionActive struct {
	Identity        string
	SessionID       string
	StartedAt       time.Time
	DurationSeconds int64
	Token           string
}

func (EmailInput) authState()    {}
func (OTPSent) authState()       {}
func (OTPVerifying) authState()  {}
func (OTPError) authState()      {}
func (SessionActive) authState() {}

// ErrorKind classifies a failed verification.
type ErrorKind uint8

const (
	// ErrorIncorrect means the submitted code did not match and attempts remain.
	ErrorIncorrect ErrorKind = iota + 1
	// ErrorExpired means the code outlived its TTL.
	ErrorExpired
	// ErrorMaxAttemptsExceeded means the attempt limit was reached. A resend is required.
	ErrorMaxAttemptsExceeded
	// ErrorNotFound means no code is outstanding for the identity.
	ErrorNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorIncorrect:
		return "Incorrect"
	case ErrorExpired:
		return "Expired"
	case ErrorMaxAttemptsExceeded:
		return "MaxAttemptsExceeded"
	case ErrorNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// StateName returns a stable lowercase name for s, suitable for logs and wire
// encodings.
func StateName(s AuthState) string {
	switch s.(type) {
	case EmailInput:
		return "email_input"
	case OTPSent:
		return "otp_sent"
	case OTPVerifying:
		return "otp_verifying"
	case OTPError:
		return "otp_error"
	case SessionActive:
		return "session_active"
	default:
		return "unknown"
	}
}

// Intent is a user action handed to [Controller.HandleIntent].
type Intent interface {
	intent()
}

// SendOTP asks for a code for Identity.
type SendOTP struct {
	Identity string
}

// VerifyOTP submits Code for the bound identity.
type VerifyOTP struct {
	Code string
}

// ResendOTP replaces an expired or exhausted code.
type ResendOTP struct{}

// Logout ends the flow and returns to EmailInput.
type Logout struct{}

func (SendOTP) intent()   {}
func (VerifyOTP) intent() {}
func (ResendOTP) intent() {}
func (Logout) intent()    {}
