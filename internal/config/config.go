// Package config loads runtime settings for the otpflow binaries from the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/MrEthical07/otpflow"
	"github.com/spf13/viper"
)

// Config holds env-sourced settings. Durations accept time.ParseDuration
// syntax ("60s", "1m").
type Config struct {
	OTPDigits      int           `mapstructure:"OTP_DIGITS"`
	OTPTTL         time.Duration `mapstructure:"OTP_TTL"`
	OTPMaxAttempts int           `mapstructure:"OTP_MAX_ATTEMPTS"`
	OTPRedisPrefix string        `mapstructure:"OTP_REDIS_PREFIX"`

	FlowCountdownInterval   time.Duration `mapstructure:"FLOW_COUNTDOWN_INTERVAL"`
	FlowSessionTickInterval time.Duration `mapstructure:"FLOW_SESSION_TICK_INTERVAL"`

	SessionTokensEnabled bool          `mapstructure:"SESSION_TOKENS_ENABLED"`
	SessionTokenTTL      time.Duration `mapstructure:"SESSION_TOKEN_TTL"`
	// SessionSigningKey is the HS256 secret.
	SessionSigningKey string `mapstructure:"SESSION_SIGNING_KEY"`
	SessionIssuer     string `mapstructure:"SESSION_ISSUER"`

	TelemetryBufferSize     int           `mapstructure:"TELEMETRY_BUFFER_SIZE"`
	TelemetryDropIfFull     bool          `mapstructure:"TELEMETRY_DROP_IF_FULL"`
	TelemetryDeliverTimeout time.Duration `mapstructure:"TELEMETRY_DELIVER_TIMEOUT"`

	MetricsEnabled           bool `mapstructure:"METRICS_ENABLED"`
	MetricsLatencyHistograms bool `mapstructure:"METRICS_LATENCY_HISTOGRAMS"`

	// RedisAddr selects Redis for code storage. Empty means the binaries
	// fall back to an embedded miniredis.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	HTTPAddr  string `mapstructure:"HTTP_ADDR"`
}

// Load reads .env from the working directory if present, then the
// environment.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file path. A missing file is not an
// error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	v.AutomaticEnv()

	defaults := otpflow.DefaultConfig()
	v.SetDefault("OTP_DIGITS", defaults.OTP.Digits)
	v.SetDefault("OTP_TTL", defaults.OTP.TTL.String())
	v.SetDefault("OTP_MAX_ATTEMPTS", defaults.OTP.MaxAttempts)
	v.SetDefault("OTP_REDIS_PREFIX", defaults.OTP.RedisPrefix)
	v.SetDefault("FLOW_COUNTDOWN_INTERVAL", defaults.Flow.CountdownInterval.String())
	v.SetDefault("FLOW_SESSION_TICK_INTERVAL", defaults.Flow.SessionTickInterval.String())
	v.SetDefault("SESSION_TOKENS_ENABLED", defaults.Session.TokensEnabled)
	v.SetDefault("SESSION_TOKEN_TTL", defaults.Session.TokenTTL.String())
	v.SetDefault("SESSION_SIGNING_KEY", "")
	v.SetDefault("SESSION_ISSUER", defaults.Session.Issuer)
	v.SetDefault("TELEMETRY_BUFFER_SIZE", defaults.Telemetry.BufferSize)
	v.SetDefault("TELEMETRY_DROP_IF_FULL", defaults.Telemetry.DropIfFull)
	v.SetDefault("TELEMETRY_DELIVER_TIMEOUT", defaults.Telemetry.DeliverTimeout.String())
	v.SetDefault("METRICS_ENABLED", defaults.Metrics.Enabled)
	v.SetDefault("METRICS_LATENCY_HISTOGRAMS", defaults.Metrics.EnableLatencyHistograms)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("HTTP_ADDR", ":8080")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.SessionTokensEnabled && len(cfg.SessionSigningKey) < 32 {
		return nil, errors.New("config: SESSION_SIGNING_KEY must be at least 32 bytes when SESSION_TOKENS_ENABLED=true")
	}
	if _, err := cfg.Flow(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Flow maps the settings onto an [otpflow.Config] and validates it.
func (c *Config) Flow() (otpflow.Config, error) {
	out := otpflow.DefaultConfig()
	out.OTP.Digits = c.OTPDigits
	out.OTP.TTL = c.OTPTTL
	out.OTP.MaxAttempts = c.OTPMaxAttempts
	out.OTP.RedisPrefix = c.OTPRedisPrefix
	out.Flow.CountdownInterval = c.FlowCountdownInterval
	out.Flow.SessionTickInterval = c.FlowSessionTickInterval
	out.Session.TokensEnabled = c.SessionTokensEnabled
	out.Session.TokenTTL = c.SessionTokenTTL
	out.Session.Issuer = c.SessionIssuer
	if c.SessionSigningKey != "" {
		out.Session.PrivateKey = []byte(c.SessionSigningKey)
	}
	out.Telemetry.BufferSize = c.TelemetryBufferSize
	out.Telemetry.DropIfFull = c.TelemetryDropIfFull
	out.Telemetry.DeliverTimeout = c.TelemetryDeliverTimeout
	out.Metrics.Enabled = c.MetricsEnabled
	out.Metrics.EnableLatencyHistograms = c.MetricsLatencyHistograms

	if err := out.Validate(); err != nil {
		return otpflow.Config{}, fmt.Errorf("config: %w", err)
	}
	return out, nil
}
