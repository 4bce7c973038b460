// Package dispatch resolves where an invocation goes under the current mode
// and drives the channel adapter call.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/services"
	"github.com/upb/action-gate/services/adapters"
	"github.com/upb/action-gate/services/approval"
	"github.com/upb/action-gate/services/lifecycle"
	"github.com/upb/action-gate/services/registry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ModeReader is the read side of the mode controller
type ModeReader interface {
	GetMode(ctx context.Context, channel models.Channel) (models.ModeState, error)
}

// Config holds retry, timeout and rate settings
type Config struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Timeout bounds each adapter call
	Timeout time.Duration
	// RatePerSecond limits adapter calls per channel; zero disables limiting
	RatePerSecond float64
	RateBurst     int
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Timeout:        10 * time.Second,
	}
}

// Dispatcher turns an approved or approval-free invocation into exactly one
// adapter delivery (plus retries) and records the outcome
type Dispatcher struct {
	modes       ModeReader
	adapters    *adapters.Registry
	operators   map[models.Channel]string
	gate        *approval.Gate
	transitions *lifecycle.Transitioner
	config      Config
	limiters    map[models.Channel]*rate.Limiter
	logger      *zap.Logger
}

// New creates a Dispatcher. operators maps every dispatch channel to the
// operator-controlled address used while the channel is not Live.
func New(
	modes ModeReader,
	adapterRegistry *adapters.Registry,
	operators map[models.Channel]string,
	transitions *lifecycle.Transitioner,
	config Config,
	logger *zap.Logger,
) *Dispatcher {
	d := &Dispatcher{
		modes:       modes,
		adapters:    adapterRegistry,
		operators:   operators,
		gate:        approval.NewGate(),
		transitions: transitions,
		config:      config,
		limiters:    make(map[models.Channel]*rate.Limiter),
		logger:      logger,
	}
	if config.RatePerSecond > 0 {
		burst := config.RateBurst
		if burst < 1 {
			burst = 1
		}
		for _, ch := range append([]models.Channel{models.ChannelNone}, models.DispatchChannels...) {
			d.limiters[ch] = rate.NewLimiter(rate.Limit(config.RatePerSecond), burst)
		}
	}
	return d
}

// Route is where an invocation will be delivered under a given mode
type Route struct {
	Mode        models.Mode
	Original    string
	Destination string
	Rehearsal   bool
}

// Resolve reads the channel's mode now and computes the destination.
// Safe and Test send to the operator address; Live keeps the original.
func (d *Dispatcher) Resolve(ctx context.Context, inv *models.Invocation, original string) (Route, error) {
	state, err := d.modes.GetMode(ctx, inv.Channel)
	if err != nil {
		return Route{}, err
	}

	route := Route{Mode: state.Mode, Original: original, Destination: original}
	if !inv.Channel.IsDispatchBound() || !state.Mode.RewritesDestination() {
		return route, nil
	}

	operator := d.operators[inv.Channel]
	if operator == "" {
		return Route{}, services.NewDomainError(services.ErrorTypeInternal,
			fmt.Sprintf("no operator address configured for channel %s", inv.Channel), nil)
	}
	route.Destination = operator
	route.Rehearsal = state.Mode == models.ModeTest
	return route, nil
}

// Dispatch claims inv for dispatch, delivers it and records the terminal
// outcome. A delivery failure is not an error: the returned invocation is
// Failed and carries the adapter error as its reason. Errors are returned for
// a lost claim (ApprovalConflict), an audit failure (AuditWriteError) or an
// infrastructure fault before the claim.
func (d *Dispatcher) Dispatch(ctx context.Context, inv *models.Invocation, exec registry.Executor) (*models.Invocation, error) {
	if err := d.gate.CheckDispatchable(inv); err != nil {
		return nil, err
	}
	if err := d.transitions.CheckRecorded(ctx, inv); err != nil {
		return nil, err
	}

	route, err := d.Resolve(ctx, inv, registry.Destination(exec, inv))
	if err != nil {
		return nil, err
	}

	claimed := inv.Clone()
	claimed.Status = models.InvocationStatusDispatched
	claimed.ModeAtDispatch = route.Mode
	claimed.OriginalDestination = route.Original
	claimed.ResolvedDestination = route.Destination
	claimed.Rehearsal = route.Rehearsal
	claimed.UpdatedAt = d.transitions.Audit().Now()

	rec := models.NewAuditRecord(claimed, models.AuditEventDispatched, claimed.UpdatedAt).
		WithActor("dispatcher").
		WithDetail(fmt.Sprintf("mode %s", route.Mode))
	if err := d.transitions.Apply(ctx, inv, claimed, rec); err != nil {
		return nil, err
	}

	logger := d.logger.With(
		zap.String("invocation_id", claimed.ID),
		zap.String("action_id", claimed.ActionID),
		zap.String("channel", string(claimed.Channel)),
		zap.String("mode", string(route.Mode)))

	// the claim is durable from here on; finish even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	payload := exec.Payload(claimed)
	payload.Rehearsal = claimed.Rehearsal

	result, attempts, sendErr := d.send(ctx, claimed.Channel, route.Destination, payload, logger)

	final := claimed.Clone()
	final.Attempts = attempts
	final.UpdatedAt = d.transitions.Audit().Now()

	var event models.AuditEvent
	if sendErr != nil {
		final.Status = models.InvocationStatusFailed
		final.Reason = sendErr.Error()
		event = models.AuditEventFailed
		logger.Warn("dispatch failed", zap.Int("attempts", attempts), zap.Error(sendErr))
	} else {
		final.Status = models.InvocationStatusCompleted
		final.Reason = "delivered"
		if result != nil && result.Reference != "" {
			final.Reason = "delivered, reference " + result.Reference
		}
		event = models.AuditEventCompleted
		logger.Info("dispatch completed", zap.Int("attempts", attempts))
	}

	rec = models.NewAuditRecord(final, event, final.UpdatedAt).
		WithActor("dispatcher").
		WithDetail(final.Reason)
	if err := d.transitions.Apply(ctx, claimed, final, rec); err != nil {
		return nil, err
	}
	return final, nil
}

// send calls the adapter with bounded exponential retries. It returns the
// number of attempts made.
func (d *Dispatcher) send(ctx context.Context, ch models.Channel, dest string, payload models.Payload, logger *zap.Logger) (*adapters.Result, int, error) {
	adapter, err := d.adapters.GetAdapter(ch)
	if err != nil {
		return nil, 0, services.WrapDispatch(fmt.Sprintf("no adapter for channel %s", ch), err)
	}

	b := backoff.NewExponentialBackOff()
	if d.config.InitialBackoff > 0 {
		b.InitialInterval = d.config.InitialBackoff
	}
	if d.config.MaxBackoff > 0 {
		b.MaxInterval = d.config.MaxBackoff
	}

	attempts := 0
	operation := func() (*adapters.Result, error) {
		if limiter := d.limiters[ch]; limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(err)
			}
		}

		attempts++
		callCtx := ctx
		if d.config.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, d.config.Timeout)
			defer cancel()
		}

		res, err := adapter.Send(callCtx, dest, payload)
		if err == nil {
			return res, nil
		}
		if !adapters.IsRetryable(err) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(d.config.MaxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Debug("retrying adapter send", zap.Error(err), zap.Duration("backoff", wait))
		}),
	)
	if err != nil {
		return nil, attempts, services.WrapDispatch(fmt.Sprintf("send failed after %d attempt(s)", attempts), err)
	}
	return res, attempts, nil
}
