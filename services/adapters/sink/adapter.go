// Package sink provides an adapter that records deliveries instead of
// performing them. It backs channels that have no relay configured.
package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/services/adapters"
	"go.uber.org/zap"
)

// Delivery is one recorded send
type Delivery struct {
	Destination string
	Payload     models.Payload
	At          time.Time
}

// Adapter keeps every delivery in memory
type Adapter struct {
	channel models.Channel
	logger  *zap.Logger

	mu         sync.Mutex
	deliveries []Delivery
	failures   []error
}

// New creates a sink for channel
func New(channel models.Channel, logger *zap.Logger) *Adapter {
	return &Adapter{channel: channel, logger: logger}
}

// Channel returns the channel this adapter serves
func (a *Adapter) Channel() models.Channel {
	return a.channel
}

// FailNext makes the next sends return errs in order before succeeding again
func (a *Adapter) FailNext(errs ...error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = append(a.failures, errs...)
}

// Send records the delivery, or pops a queued failure
func (a *Adapter) Send(ctx context.Context, destination string, payload models.Payload) (*adapters.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.failures) > 0 {
		err := a.failures[0]
		a.failures = a.failures[1:]
		return nil, err
	}

	a.deliveries = append(a.deliveries, Delivery{Destination: destination, Payload: payload, At: time.Now().UTC()})
	a.logger.Info("delivery recorded",
		zap.String("channel", string(a.channel)),
		zap.String("destination", destination),
		zap.String("invocation_id", payload.InvocationID),
		zap.Bool("rehearsal", payload.Rehearsal))

	return &adapters.Result{Reference: fmt.Sprintf("%s-%d", a.channel, len(a.deliveries))}, nil
}

// Deliveries returns a copy of every recorded delivery
func (a *Adapter) Deliveries() []Delivery {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Delivery, len(a.deliveries))
	copy(out, a.deliveries)
	return out
}
