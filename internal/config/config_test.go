package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func missingFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFile(missingFile(t))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.OTPDigits != 6 {
		t.Errorf("OTPDigits = %d, want 6", cfg.OTPDigits)
	}
	if cfg.OTPTTL != 60*time.Second {
		t.Errorf("OTPTTL = %v, want 60s", cfg.OTPTTL)
	}
	if cfg.OTPMaxAttempts != 3 {
		t.Errorf("OTPMaxAttempts = %d, want 3", cfg.OTPMaxAttempts)
	}
	if cfg.FlowCountdownInterval != time.Second {
		t.Errorf("FlowCountdownInterval = %v, want 1s", cfg.FlowCountdownInterval)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("RedisAddr = %q, want empty", cfg.RedisAddr)
	}
	if !cfg.MetricsEnabled || !cfg.TelemetryDropIfFull {
		t.Error("metrics and drop-if-full should default to true")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	t.Setenv("OTP_DIGITS", "8")
	t.Setenv("OTP_TTL", "2m")
	t.Setenv("OTP_MAX_ATTEMPTS", "5")
	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("METRICS_LATENCY_HISTOGRAMS", "true")
	t.Setenv("TELEMETRY_DELIVER_TIMEOUT", "250ms")

	cfg, err := LoadFile(missingFile(t))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.OTPDigits != 8 || cfg.OTPTTL != 2*time.Minute || cfg.OTPMaxAttempts != 5 {
		t.Errorf("unexpected OTP settings: %+v", cfg)
	}
	if cfg.RedisAddr != "127.0.0.1:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}

	flow, err := cfg.Flow()
	if err != nil {
		t.Fatalf("Flow: %v", err)
	}
	if flow.OTP.Digits != 8 || flow.OTP.TTL != 2*time.Minute || !flow.Metrics.EnableLatencyHistograms {
		t.Errorf("unexpected flow config: %+v", flow)
	}
	if flow.Telemetry.DeliverTimeout != 250*time.Millisecond {
		t.Errorf("DeliverTimeout = %v", flow.Telemetry.DeliverTimeout)
	}
}

func TestLoad_WithEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	body := "OTP_MAX_ATTEMPTS=4\nHTTP_ADDR=:9090\nSESSION_ISSUER=file-issuer\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("HTTP_ADDR", ":7777")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.OTPMaxAttempts != 4 {
		t.Errorf("OTPMaxAttempts = %d, want 4 from file", cfg.OTPMaxAttempts)
	}
	if cfg.SessionIssuer != "file-issuer" {
		t.Errorf("SessionIssuer = %q, want file-issuer", cfg.SessionIssuer)
	}
	if cfg.HTTPAddr != ":7777" {
		t.Errorf("HTTPAddr = %q, want env to win over file", cfg.HTTPAddr)
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"digits too small", map[string]string{"OTP_DIGITS": "2"}, "config:"},
		{"zero ttl", map[string]string{"OTP_TTL": "0s"}, "config:"},
		{"negative attempts", map[string]string{"OTP_MAX_ATTEMPTS": "-1"}, "config:"},
		{"short signing key", map[string]string{"SESSION_TOKENS_ENABLED": "true", "SESSION_SIGNING_KEY": "short"}, "SESSION_SIGNING_KEY"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadFile(missingFile(t))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoad_SessionTokens(t *testing.T) {
	t.Setenv("SESSION_TOKENS_ENABLED", "true")
	t.Setenv("SESSION_SIGNING_KEY", strings.Repeat("k", 32))
	t.Setenv("SESSION_TOKEN_TTL", "30m")

	cfg, err := LoadFile(missingFile(t))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	flow, err := cfg.Flow()
	if err != nil {
		t.Fatalf("Flow: %v", err)
	}
	if !flow.Session.TokensEnabled || flow.Session.TokenTTL != 30*time.Minute || len(flow.Session.PrivateKey) != 32 {
		t.Fatalf("unexpected session config: %+v", flow.Session)
	}
}
