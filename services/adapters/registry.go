package adapters

import (
	"errors"
	"sort"
	"sync"

	"github.com/upb/action-gate/models"
)

var (
	// ErrAdapterNotFound is returned when no adapter serves a channel
	ErrAdapterNotFound = errors.New("adapter not found")

	// ErrAdapterAlreadyRegistered is returned when a channel already has an adapter
	ErrAdapterAlreadyRegistered = errors.New("adapter already registered")
)

// Registry maps each channel to its adapter
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.Channel]ChannelAdapter
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[models.Channel]ChannelAdapter),
	}
}

// RegisterAdapter registers an adapter for its channel
func (r *Registry) RegisterAdapter(adapter ChannelAdapter) error {
	if adapter == nil {
		return errors.New("adapter cannot be nil")
	}

	ch := adapter.Channel()
	if !ch.IsValid() {
		return errors.New("adapter channel is not a known channel")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[ch]; exists {
		return ErrAdapterAlreadyRegistered
	}
	r.adapters[ch] = adapter
	return nil
}

// GetAdapter returns the adapter for channel
func (r *Registry) GetAdapter(ch models.Channel) (ChannelAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, exists := r.adapters[ch]
	if !exists {
		return nil, ErrAdapterNotFound
	}
	return adapter, nil
}

// Channels returns the channels that have an adapter, sorted
func (r *Registry) Channels() []models.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Channel, 0, len(r.adapters))
	for ch := range r.adapters {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
