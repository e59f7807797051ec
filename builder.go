package otpflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/otpflow/codestore"
	"github.com/MrEthical07/otpflow/internal/statebus"
	"github.com/MrEthical07/otpflow/internal/telemetry"
	"github.com/MrEthical07/otpflow/jwt"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a [Controller]. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  codestore.Store

	telemetrySink TelemetrySink
	metrics       *Metrics
	logger        *slog.Logger
	now           func() time.Time

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis stores codes in Redis under Config.OTP.RedisPrefix. Ignored when
// WithCodeStore is also used.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCodeStore uses store instead of building one from the configuration.
// The store's own policy then governs TTL and attempts.
func (b *Builder) WithCodeStore(store codestore.Store) *Builder {
	b.store = store
	return b
}

// WithTelemetrySink sets the required telemetry sink. Use [NoOpSink] to
// discard events explicitly.
func (b *Builder) WithTelemetrySink(sink TelemetrySink) *Builder {
	b.telemetrySink = sink
	return b
}

// WithLogger sets the logger for best-effort failures. Defaults to slog.Default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for the controller, a built-in code store and
// session tokens.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithMetrics records into m instead of a per-controller Metrics. Servers
// running one controller per connection use it to aggregate counters. The
// Metrics section of the configuration is then ignored.
func (b *Builder) WithMetrics(m *Metrics) *Builder {
	b.metrics = m
	return b
}

// WithLatencyHistograms toggles the validate-latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and starts a controller in EmailInput.
func (b *Builder) Build() (*Controller, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.telemetrySink == nil {
		return nil, ErrTelemetrySinkRequired
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	// -------- CODE STORE --------
	store := b.store
	if store == nil {
		opts := []codestore.Option{codestore.WithClock(now)}
		if b.redis != nil {
			store = codestore.NewRedisStore(b.redis, cfg.OTP.RedisPrefix, cfg.policy(), opts...)
		} else {
			store = codestore.NewMemoryStore(cfg.policy(), opts...)
		}
	}

	// -------- SESSION TOKENS --------
	var tokens *jwt.Manager
	if cfg.Session.TokensEnabled {
		jm, err := jwt.NewManager(jwt.Config{
			TTL:           cfg.Session.TokenTTL,
			SigningMethod: jwt.SigningMethod(cfg.Session.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Session.PrivateKey),
			PublicKey:     cloneBytes(cfg.Session.PublicKey),
			Issuer:        cfg.Session.Issuer,
			Now:           now,
		})
		if err != nil {
			return nil, err
		}
		tokens = jm
	}

	metrics := b.metrics
	if metrics == nil {
		metrics = NewMetrics(cfg.Metrics)
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		config:       cfg,
		store:        store,
		tokens:       tokens,
		metrics:      metrics,
		logger:       logger,
		now:          now,
		newSessionID: uuid.NewString,
		lifetime:     codestore.LifetimeSeconds(cfg.OTP.TTL),
		bus:          statebus.New[AuthState](EmailInput{}),
		ctx:          ctx,
		cancel:       cancel,
	}
	c.telemetry = telemetry.NewDispatcher(telemetry.Config{
		BufferSize:     cfg.Telemetry.BufferSize,
		DropIfFull:     cfg.Telemetry.DropIfFull,
		DeliverTimeout: cfg.Telemetry.DeliverTimeout,
	}, b.telemetrySink)

	b.built = true

	return c, nil
}
