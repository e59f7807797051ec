package otpflow

import (
	"context"

	"github.com/MrEthical07/otpflow/internal/task"
)

// startCountdown replaces the countdown loop. Callers hold intentMu.
func (c *Controller) startCountdown(identity string, remaining int64) {
	c.stopCountdown()
	c.countdown = task.Start(c.ctx, func(ctx context.Context) {
		local := remaining
		task.Every(ctx, c.config.Flow.CountdownInterval, func(ctx context.Context) bool {
			return c.countdownTick(ctx, identity, &local)
		})
	})
}

func (c *Controller) stopCountdown() {
	c.countdown.Stop()
	c.countdown = nil
}

// countdownTick refreshes the displayed remaining time from the store and
// reports whether the loop should keep running. The local counter only
// stands in when the store lookup fails.
func (c *Controller) countdownTick(ctx context.Context, identity string, local *int64) bool {
	*local--

	secs, ok, err := c.store.RemainingSeconds(ctx, identity)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		c.logFailure("countdown remaining time lookup failed", identity, err)
		secs, ok = *local, *local > 0
	}

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return false
	}

	if !ok || secs <= 0 {
		var shown string
		expired := false
		switch s := c.bus.Value().(type) {
		case OTPSent:
			shown, expired = s.Code, s.Identity == identity
		case OTPVerifying:
			shown, expired = s.Code, s.Identity == identity
		}
		if expired && c.publishLocked(ctx, OTPError{Identity: identity, Kind: ErrorExpired, Code: shown}) {
			c.metrics.Inc(MetricOTPExpired)
			c.metrics.IncError(ErrorExpired)
			c.emit(ctx, EventOTPExpired, identity, nil)
		}
		c.mu.Unlock()
		return false
	}

	*local = secs
	switch s := c.bus.Value().(type) {
	case OTPSent:
		if s.Identity == identity {
			s.RemainingSeconds = secs
			c.publishLocked(ctx, s)
		}
	case OTPVerifying:
		if s.Identity == identity {
			s.RemainingSeconds = secs
			c.publishLocked(ctx, s)
		}
	}
	c.mu.Unlock()
	return true
}

// startSession replaces the session timer loop. Callers hold intentMu.
func (c *Controller) startSession() {
	c.stopSession()
	c.session = task.Start(c.ctx, func(ctx context.Context) {
		task.Every(ctx, c.config.Flow.SessionTickInterval, c.sessionTick)
	})
}

func (c *Controller) stopSession() {
	c.session.Stop()
	c.session = nil
}

func (c *Controller) sessionTick(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ctx.Err() != nil {
		return false
	}
	s, ok := c.bus.Value().(SessionActive)
	if !ok {
		return false
	}
	s.DurationSeconds = wholeSeconds(c.now().Sub(s.StartedAt))
	return c.publishLocked(ctx, s)
}
