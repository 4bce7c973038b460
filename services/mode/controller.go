// Package mode owns the per-channel dispatch mode.
package mode

import (
	"context"
	"errors"
	"time"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"github.com/upb/action-gate/services"
	"go.uber.org/zap"
)

const defaultMaxAttempts = 5

// Controller is the single writer of mode state. Reads return a complete
// snapshot from the store; writes go through a versioned compare-and-swap
// that also records the change.
type Controller struct {
	store       repositories.ModeRepository
	logger      *zap.Logger
	defaultMode models.Mode
	maxAttempts int
	now         func() time.Time
}

// Option configures a Controller
type Option func(*Controller)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithDefaultMode sets the mode reported for channels that were never switched
func WithDefaultMode(m models.Mode) Option {
	return func(c *Controller) { c.defaultMode = m }
}

// WithMaxAttempts bounds how often an unconditional switch retries after
// losing a race
func WithMaxAttempts(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// NewController creates a Controller over store. The default mode is Safe.
func NewController(store repositories.ModeRepository, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		store:       store,
		logger:      logger,
		defaultMode: models.ModeSafe,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SwitchRequest asks for channel to move to Mode. When ExpectedMode is set the
// switch only applies if the channel is currently in that mode.
type SwitchRequest struct {
	Channel      models.Channel
	Mode         models.Mode
	ChangedBy    string
	ExpectedMode *models.Mode
}

// GetMode returns the current state of channel. Channels without a mode
// (ChannelNone) always report Live since nothing is redirected.
func (c *Controller) GetMode(ctx context.Context, channel models.Channel) (models.ModeState, error) {
	if channel == models.ChannelNone {
		return models.ModeState{Channel: channel, Mode: models.ModeLive}, nil
	}
	if !channel.IsDispatchBound() {
		return models.ModeState{}, services.ErrUnknownChannel
	}
	return c.load(ctx, channel)
}

func (c *Controller) load(ctx context.Context, channel models.Channel) (models.ModeState, error) {
	st, err := c.store.Load(ctx, channel)
	if errors.Is(err, repositories.ErrNotFound) {
		return models.ModeState{Channel: channel, Mode: c.defaultMode}, nil
	}
	if err != nil {
		return models.ModeState{}, services.WrapInternal("failed to load mode", err)
	}
	return *st, nil
}

// List returns the state of every dispatch channel
func (c *Controller) List(ctx context.Context) ([]models.ModeState, error) {
	out := make([]models.ModeState, 0, len(models.DispatchChannels))
	for _, ch := range models.DispatchChannels {
		st, err := c.load(ctx, ch)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Switch atomically moves a channel to a new mode and records the change.
// Concurrent unconditional switches resolve last-writer-wins; a conditional
// switch whose expectation no longer holds returns ErrModeSwitchConflict.
func (c *Controller) Switch(ctx context.Context, req SwitchRequest) (*models.ModeChange, error) {
	if !req.Channel.IsDispatchBound() {
		return nil, services.ErrUnknownChannel
	}
	if !req.Mode.IsValid() {
		return nil, services.ErrInvalidMode
	}
	if req.ChangedBy == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "changedBy is required", nil).
			WithDetail("missingFields", []string{"changedBy"})
	}

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		cur, err := c.load(ctx, req.Channel)
		if err != nil {
			return nil, err
		}
		if req.ExpectedMode != nil && cur.Mode != *req.ExpectedMode {
			return nil, services.NewDomainError(services.ErrorTypeModeSwitchConflict, "channel is not in the expected mode", nil).
				WithDetail("channel", string(req.Channel)).
				WithDetail("currentMode", string(cur.Mode)).
				WithDetail("expectedMode", string(*req.ExpectedMode))
		}

		next := cur.Next(req.Mode, req.ChangedBy, c.now().UTC())
		change := models.NewModeChange(cur, next)

		swapped, err := c.store.CompareAndSwap(ctx, next, cur.Version, change)
		if err != nil {
			return nil, services.WrapInternal("failed to store mode", err)
		}
		if swapped {
			c.logger.Info("dispatch mode switched",
				zap.String("channel", string(req.Channel)),
				zap.String("previous_mode", string(cur.Mode)),
				zap.String("mode", string(req.Mode)),
				zap.String("changed_by", req.ChangedBy),
				zap.Int64("version", next.Version))
			return change, nil
		}

		c.logger.Debug("mode switch lost race, retrying",
			zap.String("channel", string(req.Channel)),
			zap.Int("attempt", attempt))
	}

	return nil, services.NewDomainError(services.ErrorTypeModeSwitchConflict, "mode changed concurrently", nil).
		WithDetail("channel", string(req.Channel))
}

// History returns up to limit changes for channel, newest first
func (c *Controller) History(ctx context.Context, channel models.Channel, limit int) ([]*models.ModeChange, error) {
	if !channel.IsDispatchBound() {
		return nil, services.ErrUnknownChannel
	}
	changes, err := c.store.History(ctx, channel, limit)
	if err != nil {
		return nil, services.WrapInternal("failed to load mode history", err)
	}
	return changes, nil
}
