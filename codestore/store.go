package codestore

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultDigits is the width of generated codes.
	DefaultDigits = 6
	// DefaultTTL is how long a generated code stays valid.
	DefaultTTL = 60 * time.Second
	// DefaultMaxAttempts caps validation attempts per code.
	DefaultMaxAttempts = 3
)

// ErrUnavailable wraps backend failures. Domain outcomes never use it.
var ErrUnavailable = errors.New("code store unavailable")

// Result is the outcome of a validation attempt.
type Result uint8

const (
	// ResultSuccess means the submitted code matched; the record is consumed.
	ResultSuccess Result = iota + 1
	// ResultIncorrect means a mismatch with attempts still remaining.
	ResultIncorrect
	// ResultExpired means the record outlived its expiry and was removed.
	ResultExpired
	// ResultMaxAttemptsExceeded means the attempt limit was reached and the record was removed.
	ResultMaxAttemptsExceeded
	// ResultNotFound means no record exists for the identity.
	ResultNotFound
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "Success"
	case ResultIncorrect:
		return "Incorrect"
	case ResultExpired:
		return "Expired"
	case ResultMaxAttemptsExceeded:
		return "MaxAttemptsExceeded"
	case ResultNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Policy fixes the shape and lifetime of generated codes.
type Policy struct {
	Digits      int
	TTL         time.Duration
	MaxAttempts int
}

// DefaultPolicy returns 6-digit codes valid for 60 seconds with 3 attempts.
func DefaultPolicy() Policy {
	return Policy{
		Digits:      DefaultDigits,
		TTL:         DefaultTTL,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Validate reports whether the policy can be used by a store.
func (p Policy) Validate() error {
	if p.Digits < minDigits || p.Digits > maxDigits {
		return errors.New("codestore: Digits must be between 4 and 10")
	}
	if p.TTL < time.Second {
		return errors.New("codestore: TTL must be >= 1s")
	}
	if p.MaxAttempts <= 0 {
		return errors.New("codestore: MaxAttempts must be > 0")
	}
	return nil
}

func (p Policy) withDefaults() Policy {
	if p.Digits == 0 {
		p.Digits = DefaultDigits
	}
	if p.TTL == 0 {
		p.TTL = DefaultTTL
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	return p
}

// Store is the per-identity one-time code store. Implementations are safe
// for concurrent use; every method is atomic with respect to the others.
type Store interface {
	// Generate issues a new code for identity, replacing any prior record.
	Generate(ctx context.Context, identity string) (string, error)
	// Validate checks submitted against the outstanding record.
	Validate(ctx context.Context, identity, submitted string) (Result, error)
	// RemainingSeconds returns whole seconds until expiry. An expired record
	// is removed and reported absent.
	RemainingSeconds(ctx context.Context, identity string) (int64, bool, error)
	// CanResend is false exactly while a live, not-yet-exhausted code exists.
	CanResend(ctx context.Context, identity string) (bool, error)
	// CurrentCode peeks at the stored code without counting an attempt.
	CurrentCode(ctx context.Context, identity string) (string, bool, error)
	// Clear removes the record. Clearing a missing record is not an error.
	Clear(ctx context.Context, identity string) error
}

// SecondsUntil converts a millisecond distance to expiry into whole seconds,
// rounding up so a fresh code reads as its full lifetime. ok is false once
// the distance is zero or negative.
func SecondsUntil(remainingMillis int64) (int64, bool) {
	if remainingMillis <= 0 {
		return 0, false
	}
	return (remainingMillis + 999) / 1000, true
}

// LifetimeSeconds is the countdown value shown for a freshly issued code.
func LifetimeSeconds(ttl time.Duration) int64 {
	secs, _ := SecondsUntil(ttl.Milliseconds())
	return secs
}

type options struct {
	now      func() time.Time
	generate func(digits int) (string, error)
}

// Option customizes a store.
type Option func(*options)

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithCodeGenerator overrides code generation. Mostly useful in tests.
func WithCodeGenerator(fn func(digits int) (string, error)) Option {
	return func(o *options) {
		if fn != nil {
			o.generate = fn
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:      time.Now,
		generate: NewCode,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
