package otpflow

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.OTP.Digits != 6 || cfg.OTP.TTL != 60*time.Second || cfg.OTP.MaxAttempts != 3 {
		t.Fatalf("unexpected OTP defaults %+v", cfg.OTP)
	}
	if cfg.Flow.CountdownInterval != time.Second || cfg.Flow.SessionTickInterval != time.Second {
		t.Fatalf("unexpected flow defaults %+v", cfg.Flow)
	}
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"digits too small":         func(c *Config) { c.OTP.Digits = 3 },
		"digits too large":         func(c *Config) { c.OTP.Digits = 11 },
		"zero ttl":                 func(c *Config) { c.OTP.TTL = 0 },
		"zero attempts":            func(c *Config) { c.OTP.MaxAttempts = 0 },
		"empty redis prefix":       func(c *Config) { c.OTP.RedisPrefix = "" },
		"zero countdown":           func(c *Config) { c.Flow.CountdownInterval = 0 },
		"zero session tick":        func(c *Config) { c.Flow.SessionTickInterval = 0 },
		"zero telemetry buffer":    func(c *Config) { c.Telemetry.BufferSize = 0 },
		"negative deliver timeout": func(c *Config) { c.Telemetry.DeliverTimeout = -time.Second },
		"token ttl":                func(c *Config) { c.Session.TokensEnabled = true; c.Session.PrivateKey = make([]byte, 32); c.Session.TokenTTL = 0 },
		"short hs256 key":          func(c *Config) { c.Session.TokensEnabled = true; c.Session.PrivateKey = []byte("short") },
		"ed25519 without keys":     func(c *Config) { c.Session.TokensEnabled = true; c.Session.SigningMethod = "ed25519" },
		"unknown signing method":   func(c *Config) { c.Session.TokensEnabled = true; c.Session.SigningMethod = "rs512" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestConfigSigningKeysAreIgnoredWhenTokensDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.SigningMethod = "rs512"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected disabled tokens to skip key checks: %v", err)
	}
}

func TestWithConfigClonesKeys(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	cfg := DefaultConfig()
	cfg.Session.PrivateKey = key

	b := New().WithConfig(cfg)
	key[0] = 'X'

	if b.config.Session.PrivateKey[0] != '0' {
		t.Fatal("expected builder to hold a copy of the signing key")
	}
}
