package otpflow

import (
	"errors"
	"time"

	"github.com/MrEthical07/otpflow/codestore"
	"github.com/MrEthical07/otpflow/jwt"
)

// Config is the full controller configuration. Start from [DefaultConfig] and
// override fields.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	OTP       OTPConfig
	Flow      FlowConfig
	Session   SessionConfig
	Telemetry TelemetryConfig
	Metrics   MetricsConfig
}

// OTPConfig controls code generation and validation.
type OTPConfig struct {
	Digits      int
	TTL         time.Duration
	MaxAttempts int
	RedisPrefix string
}

// FlowConfig controls the background timer loops.
type FlowConfig struct {
	CountdownInterval   time.Duration
	SessionTickInterval time.Duration
}

// SessionConfig controls optional signed session tokens.
type SessionConfig struct {
	TokensEnabled bool
	TokenTTL      time.Duration
	SigningMethod string
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

// TelemetryConfig controls event buffering.
type TelemetryConfig struct {
	BufferSize int
	DropIfFull bool
	// DeliverTimeout is the deadline on the context each sink call receives.
	// Zero disables it.
	DeliverTimeout time.Duration
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a config with 6-digit codes, a 60s TTL, 3 attempts
// and one-second ticks.
func DefaultConfig() Config {
	return Config{
		OTP: OTPConfig{
			Digits:      codestore.DefaultDigits,
			TTL:         codestore.DefaultTTL,
			MaxAttempts: codestore.DefaultMaxAttempts,
			RedisPrefix: codestore.DefaultRedisPrefix,
		},
		Flow: FlowConfig{
			CountdownInterval:   time.Second,
			SessionTickInterval: time.Second,
		},
		Session: SessionConfig{
			TokensEnabled: false,
			TokenTTL:      time.Hour,
			SigningMethod: string(jwt.MethodHS256),
			Issuer:        "otpflow",
		},
		Telemetry: TelemetryConfig{
			BufferSize:     256,
			DropIfFull:     true,
			DeliverTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Session.PrivateKey = cloneBytes(cfg.Session.PrivateKey)
	out.Session.PublicKey = cloneBytes(cfg.Session.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c Config) policy() codestore.Policy {
	return codestore.Policy{
		Digits:      c.OTP.Digits,
		TTL:         c.OTP.TTL,
		MaxAttempts: c.OTP.MaxAttempts,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// OTP
	if err := c.policy().Validate(); err != nil {
		return err
	}
	if c.OTP.RedisPrefix == "" {
		return errors.New("OTP RedisPrefix must not be empty")
	}

	// Flow
	if c.Flow.CountdownInterval <= 0 {
		return errors.New("Flow CountdownInterval must be > 0")
	}
	if c.Flow.SessionTickInterval <= 0 {
		return errors.New("Flow SessionTickInterval must be > 0")
	}

	// Session tokens
	if c.Session.TokensEnabled {
		if c.Session.TokenTTL <= 0 {
			return errors.New("Session TokenTTL must be > 0")
		}
		switch jwt.SigningMethod(c.Session.SigningMethod) {
		case jwt.MethodHS256:
			if len(c.Session.PrivateKey) < 32 {
				return errors.New("hs256 requires PrivateKey of at least 32 bytes")
			}
		case jwt.MethodEd25519:
			if len(c.Session.PrivateKey) == 0 || len(c.Session.PublicKey) == 0 {
				return errors.New("ed25519 requires PrivateKey and PublicKey")
			}
		default:
			return errors.New("unsupported Session SigningMethod")
		}
	}

	// Telemetry
	if c.Telemetry.BufferSize <= 0 {
		return errors.New("Telemetry BufferSize must be > 0")
	}
	if c.Telemetry.DeliverTimeout < 0 {
		return errors.New("Telemetry DeliverTimeout must be >= 0")
	}

	return nil
}
