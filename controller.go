package otpflow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/otpflow/codestore"
	"github.com/MrEthical07/otpflow/internal/statebus"
	"github.com/MrEthical07/otpflow/internal/task"
	"github.com/MrEthical07/otpflow/internal/telemetry"
	"github.com/MrEthical07/otpflow/jwt"
)

// Controller drives one login flow. It owns the current [AuthState], handles
// intents one at a time and runs the countdown and session timer loops.
//
// Controller methods are safe for concurrent use.
type Controller struct {
	config       Config
	store        codestore.Store
	tokens       *jwt.Manager
	telemetry    *telemetry.Dispatcher
	metrics      *Metrics
	logger       *slog.Logger
	now          func() time.Time
	newSessionID func() string
	lifetime     int64

	// intentMu serializes intents and Close. The fields below it are only
	// touched while it is held.
	intentMu     sync.Mutex
	identity     string
	sessionStart time.Time
	countdown    *task.Task
	session      *task.Task
	closed       bool

	// mu orders publishes between intents and the timer loops. It is never
	// held while waiting for a loop to stop.
	mu  sync.Mutex
	bus *statebus.Bus[AuthState]

	ctx    context.Context
	cancel context.CancelFunc
}

// State returns the current state.
func (c *Controller) State() AuthState {
	return c.bus.Value()
}

// Subscribe returns a channel that immediately yields the current state and
// then every later state. A slow reader only sees the newest state. Call the
// returned func to unsubscribe; Close also closes the channel.
func (c *Controller) Subscribe() (<-chan AuthState, func()) {
	return c.bus.Subscribe()
}

// Watch calls fn synchronously for every published state, in order. fn must
// not call HandleIntent or Close.
func (c *Controller) Watch(fn func(AuthState)) func() {
	return c.bus.Watch(fn)
}

// Close stops both timer loops, closes subscriptions and flushes buffered
// telemetry. It is idempotent.
func (c *Controller) Close() {
	if c == nil {
		return
	}

	c.intentMu.Lock()
	if c.closed {
		c.intentMu.Unlock()
		return
	}
	c.closed = true
	c.stopCountdown()
	c.stopSession()
	c.intentMu.Unlock()

	c.cancel()
	c.bus.Close()
	c.telemetry.Close()
}

// TelemetryDropped returns the number of events discarded because the
// telemetry buffer was full.
func (c *Controller) TelemetryDropped() uint64 {
	if c == nil {
		return 0
	}
	return c.telemetry.Dropped()
}

// MetricsSnapshot returns a copy of the controller counters.
func (c *Controller) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return emptySnapshot()
	}
	return c.metrics.Snapshot()
}

// HandleIntent applies intent to the flow. Intents run one at a time; a second
// caller waits for the first to finish and then sees its resulting state.
//
// Malformed intents and intents that are not legal in the current state are
// ignored and return nil. The error return is reserved for
// [ErrControllerClosed] and code store failures wrapped in
// [ErrCodeStoreUnavailable].
func (c *Controller) HandleIntent(ctx context.Context, intent Intent) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.intentMu.Lock()
	defer c.intentMu.Unlock()

	if c.closed {
		return ErrControllerClosed
	}

	switch in := intent.(type) {
	case SendOTP:
		return c.sendOTP(ctx, in)
	case VerifyOTP:
		return c.verifyOTP(ctx, in)
	case ResendOTP:
		return c.resendOTP(ctx)
	case Logout:
		return c.logout(ctx)
	default:
		c.ignored()
		return nil
	}
}

func (c *Controller) sendOTP(ctx context.Context, in SendOTP) error {
	identity := strings.TrimSpace(in.Identity)
	if identity == "" {
		c.ignored()
		return nil
	}
	if _, ok := c.State().(EmailInput); !ok {
		c.ignored()
		return nil
	}

	code, err := c.store.Generate(ctx, identity)
	if err != nil {
		return c.storeFailure(err)
	}

	c.identity = identity
	c.metrics.Inc(MetricOTPSent)
	c.publish(nil, OTPSent{Identity: identity, RemainingSeconds: c.lifetime, Code: code})
	c.emit(ctx, EventOTPSent, identity, nil)
	c.startCountdown(identity, c.lifetime)
	return nil
}

func (c *Controller) verifyOTP(ctx context.Context, in VerifyOTP) error {
	identity := c.identity
	if identity == "" || len(in.Code) != c.config.OTP.Digits {
		c.ignored()
		return nil
	}

	prev := c.State()
	var (
		remaining int64
		shown     string
	)
	switch s := prev.(type) {
	case OTPSent:
		remaining, shown = s.RemainingSeconds, s.Code
	case OTPVerifying:
		remaining, shown = s.RemainingSeconds, s.Code
	case OTPError:
		shown = s.Code
		if secs, ok, err := c.store.RemainingSeconds(ctx, identity); err == nil && ok {
			remaining = secs
		}
	default:
		c.ignored()
		return nil
	}

	// Validate may consume the record; a tick seeing it gone would report Expired.
	c.stopCountdown()
	c.publish(nil, OTPVerifying{Identity: identity, RemainingSeconds: remaining, Code: shown})

	start := time.Now()
	result, err := c.store.Validate(ctx, identity, in.Code)
	c.metrics.Observe(MetricValidateLatency, time.Since(start))
	if err != nil {
		c.publish(nil, prev)
		if remaining > 0 {
			c.startCountdown(identity, remaining)
		}
		return c.storeFailure(err)
	}

	switch result {
	case codestore.ResultSuccess:
		c.startSessionFor(ctx, identity)

	case codestore.ResultIncorrect:
		code, _, err := c.store.CurrentCode(ctx, identity)
		if err != nil {
			c.logFailure("current code lookup failed", identity, err)
		}
		secs, ok, err := c.store.RemainingSeconds(ctx, identity)
		if err != nil {
			c.logFailure("remaining time lookup failed", identity, err)
		}
		c.publish(nil, OTPError{Identity: identity, Kind: ErrorIncorrect, Code: code})
		c.metrics.Inc(MetricOTPVerificationFailed)
		c.metrics.IncError(ErrorIncorrect)
		c.emit(ctx, EventOTPVerificationFailed, identity, map[string]string{
			ParamErrorType: ErrorIncorrect.String(),
		})
		if ok && secs > 0 {
			c.startCountdown(identity, secs)
		}

	case codestore.ResultExpired:
		c.publish(nil, OTPError{Identity: identity, Kind: ErrorExpired})
		c.metrics.Inc(MetricOTPExpired)
		c.metrics.IncError(ErrorExpired)
		c.emit(ctx, EventOTPExpired, identity, nil)

	case codestore.ResultMaxAttemptsExceeded:
		c.publish(nil, OTPError{Identity: identity, Kind: ErrorMaxAttemptsExceeded})
		c.metrics.Inc(MetricOTPMaxAttemptsExceeded)
		c.metrics.IncError(ErrorMaxAttemptsExceeded)
		c.emit(ctx, EventMaxAttemptsExceeded, identity, map[string]string{
			ParamAttemptCount: strconv.Itoa(c.config.OTP.MaxAttempts),
		})

	default:
		c.publish(nil, OTPError{Identity: identity, Kind: ErrorNotFound})
		c.metrics.Inc(MetricOTPVerificationFailed)
		c.metrics.IncError(ErrorNotFound)
		c.emit(ctx, EventOTPVerificationFailed, identity, map[string]string{
			ParamErrorType: ErrorNotFound.String(),
		})
	}

	return nil
}

func (c *Controller) startSessionFor(ctx context.Context, identity string) {
	sessionID := c.newSessionID()
	startedAt := c.now()

	var token string
	if c.tokens != nil {
		signed, err := c.tokens.Issue(identity, sessionID)
		if err != nil {
			c.logger.Warn("otpflow: session token issue failed", "email", identity, "error", err)
		} else {
			token = signed
		}
	}

	c.sessionStart = startedAt
	c.publish(nil, SessionActive{
		Identity:  identity,
		SessionID: sessionID,
		StartedAt: startedAt,
		Token:     token,
	})
	c.metrics.Inc(MetricOTPVerified)
	c.metrics.Inc(MetricSessionStarted)
	c.emit(ctx, EventOTPVerified, identity, nil)
	c.emit(ctx, EventSessionStarted, identity, nil)
	c.startSession()
}

func (c *Controller) resendOTP(ctx context.Context) error {
	identity := c.identity
	if identity == "" {
		c.ignored()
		return nil
	}
	switch c.State().(type) {
	case OTPSent, OTPVerifying, OTPError:
	default:
		c.ignored()
		return nil
	}

	allowed, err := c.store.CanResend(ctx, identity)
	if err != nil {
		return c.storeFailure(err)
	}
	if !allowed {
		c.ignored()
		return nil
	}

	c.stopCountdown()
	if err := c.store.Clear(ctx, identity); err != nil {
		c.logFailure("clear before resend failed", identity, err)
	}
	code, err := c.store.Generate(ctx, identity)
	if err != nil {
		return c.storeFailure(err)
	}

	c.publish(nil, OTPSent{Identity: identity, RemainingSeconds: c.lifetime, Code: code})
	c.metrics.Inc(MetricOTPResent)
	c.emit(ctx, EventOTPResent, identity, nil)
	c.startCountdown(identity, c.lifetime)
	return nil
}

func (c *Controller) logout(ctx context.Context) error {
	c.stopCountdown()
	c.stopSession()

	identity := c.identity
	_, atInput := c.State().(EmailInput)
	if identity == "" && atInput {
		c.ignored()
		return nil
	}

	hadSession := !c.sessionStart.IsZero()
	var duration int64
	if hadSession {
		duration = wholeSeconds(c.now().Sub(c.sessionStart))
	}

	if identity != "" {
		if err := c.store.Clear(ctx, identity); err != nil {
			c.logFailure("clear on logout failed", identity, err)
		}
	}

	c.identity = ""
	c.sessionStart = time.Time{}
	c.publish(nil, EmailInput{})

	if hadSession {
		c.metrics.Inc(MetricSessionEnded)
		c.emit(ctx, EventSessionEnded, identity, map[string]string{
			ParamSessionDuration: strconv.FormatInt(duration, 10),
		})
	}
	return nil
}

// publish replaces the current state. When loopCtx is non-nil the publish is
// dropped if that loop has been cancelled; the check and the publish happen
// under c.mu so a stopped loop can never publish after its Stop returns.
func (c *Controller) publish(loopCtx context.Context, s AuthState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.publishLocked(loopCtx, s)
}

func (c *Controller) publishLocked(loopCtx context.Context, s AuthState) bool {
	if loopCtx != nil && loopCtx.Err() != nil {
		return false
	}
	c.bus.Publish(s)
	return true
}

func (c *Controller) emit(ctx context.Context, name, identity string, params map[string]string) {
	c.telemetry.Emit(ctx, TelemetryEvent{
		Timestamp: c.now(),
		Name:      name,
		Email:     identity,
		Params:    params,
	})
}

func (c *Controller) ignored() {
	c.metrics.Inc(MetricIntentIgnored)
}

func (c *Controller) storeFailure(err error) error {
	c.metrics.Inc(MetricCodeStoreFailure)
	return fmt.Errorf("%w: %v", ErrCodeStoreUnavailable, err)
}

func (c *Controller) logFailure(msg, identity string, err error) {
	c.metrics.Inc(MetricCodeStoreFailure)
	c.logger.Warn("otpflow: "+msg, "email", identity, "error", err)
}

func wholeSeconds(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}
