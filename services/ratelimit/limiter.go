// Package ratelimit enforces per-agent submission quotas over fixed minute,
// hour and day windows.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/action-gate/services"
	"go.uber.org/zap"
)

// Window is a quota period
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Limits caps submissions per requester. A zero limit disables that window.
type Limits struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// Enabled reports whether any window is limited
func (l Limits) Enabled() bool {
	return l.PerMinute > 0 || l.PerHour > 0 || l.PerDay > 0
}

// Counter increments a windowed counter. The key expires after ttl.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Result is the outcome of a quota check
type Result struct {
	Allowed         bool
	Remaining       int
	ResetAt         time.Time
	ViolatedWindow  Window
	ViolationReason string
}

// Limiter checks submissions against Limits
type Limiter struct {
	counter Counter
	limits  Limits
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter
func New(counter Counter, limits Limits, logger *zap.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		counter: counter,
		limits:  limits,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow counts one submission by requester and reports whether it fits every
// configured window. Windows are checked from the shortest; a denial stops
// counting in the longer windows.
func (l *Limiter) Allow(ctx context.Context, requester string) (*Result, error) {
	now := l.now().UTC()
	result := &Result{Allowed: true, Remaining: -1}

	for _, w := range []struct {
		window Window
		limit  int
	}{
		{WindowMinute, l.limits.PerMinute},
		{WindowHour, l.limits.PerHour},
		{WindowDay, l.limits.PerDay},
	} {
		if w.limit <= 0 {
			continue
		}

		start, reset := windowBounds(now, w.window)
		count, err := l.counter.Incr(ctx, scopeKey(requester, w.window, start), reset.Sub(now)+time.Second)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s window: %w", w.window, err)
		}

		remaining := w.limit - int(count)
		if remaining < 0 {
			return &Result{
				Allowed:         false,
				ResetAt:         reset,
				ViolatedWindow:  w.window,
				ViolationReason: fmt.Sprintf("exceeded %d submissions per %s", w.limit, w.window),
			}, nil
		}
		if result.Remaining < 0 || remaining < result.Remaining {
			result.Remaining = remaining
			result.ResetAt = reset
		}
	}
	return result, nil
}

// Check is Allow expressed as an error. Counter failures let the submission
// through; quotas guard against floods and must not take submission down with
// the counter store.
func (l *Limiter) Check(ctx context.Context, requester string) error {
	res, err := l.Allow(ctx, requester)
	if err != nil {
		l.logger.Warn("submission quota check failed, allowing",
			zap.String("requested_by", requester),
			zap.Error(err))
		return nil
	}
	if res.Allowed {
		return nil
	}

	l.logger.Warn("submission quota exceeded",
		zap.String("requested_by", requester),
		zap.String("window", string(res.ViolatedWindow)))
	return services.NewDomainError(services.ErrorTypeRateLimit, res.ViolationReason, nil).
		WithDetail("requestedBy", requester).
		WithDetail("window", string(res.ViolatedWindow)).
		WithDetail("resetAt", res.ResetAt.Format(time.RFC3339))
}

// windowBounds returns the start of the fixed window holding now and when it resets
func windowBounds(now time.Time, window Window) (start, reset time.Time) {
	switch window {
	case WindowMinute:
		start = now.Truncate(time.Minute)
		reset = start.Add(time.Minute)
	case WindowHour:
		start = now.Truncate(time.Hour)
		reset = start.Add(time.Hour)
	default:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		reset = start.AddDate(0, 0, 1)
	}
	return start, reset
}

func scopeKey(requester string, window Window, start time.Time) string {
	return fmt.Sprintf("submit:%s:%s:%d", requester, window, start.Unix())
}
