package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
)

type modeSlot struct {
	state atomic.Pointer[models.ModeState]
}

// ModeRepository holds one atomically swapped state pointer per channel.
// Readers never observe a partially written state.
type ModeRepository struct {
	mu      sync.Mutex
	slots   map[models.Channel]*modeSlot
	history map[models.Channel][]*models.ModeChange
}

// NewModeRepository creates a repository with a slot for every dispatch channel
func NewModeRepository() *ModeRepository {
	r := &ModeRepository{
		slots:   make(map[models.Channel]*modeSlot),
		history: make(map[models.Channel][]*models.ModeChange),
	}
	for _, ch := range models.DispatchChannels {
		r.slots[ch] = &modeSlot{}
	}
	return r
}

func (r *ModeRepository) slot(channel models.Channel) *modeSlot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[channel]
	if !ok {
		s = &modeSlot{}
		r.slots[channel] = s
	}
	return s
}

// Load returns the current state or ErrNotFound
func (r *ModeRepository) Load(_ context.Context, channel models.Channel) (*models.ModeState, error) {
	cur := r.slot(channel).state.Load()
	if cur == nil {
		return nil, repositories.ErrNotFound
	}
	out := *cur
	return &out, nil
}

// CompareAndSwap swaps the state pointer when the stored version matches.
// Writers serialize on the mutex so the swap and its change record land
// together; readers go through the atomic pointer without locking.
func (r *ModeRepository) CompareAndSwap(_ context.Context, next models.ModeState, expectedVersion int64, change *models.ModeChange) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[next.Channel]
	if !ok {
		s = &modeSlot{}
		r.slots[next.Channel] = s
	}
	cur := s.state.Load()

	var curVersion int64
	if cur != nil {
		curVersion = cur.Version
	}
	if curVersion != expectedVersion {
		return false, nil
	}

	stored := next
	s.state.Store(&stored)

	if change != nil {
		c := *change
		r.history[next.Channel] = append(r.history[next.Channel], &c)
	}
	return true, nil
}

// History returns recorded changes for channel, newest first
func (r *ModeRepository) History(_ context.Context, channel models.Channel, limit int) ([]*models.ModeChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changes := r.history[channel]
	out := make([]*models.ModeChange, 0, len(changes))
	for i := len(changes) - 1; i >= 0; i-- {
		c := *changes[i]
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// New returns a memory-backed set of repositories
func New() *repositories.Repositories {
	return &repositories.Repositories{
		Invocations: NewInvocationRepository(),
		Audit:       NewAuditRepository(),
		Modes:       NewModeRepository(),
	}
}
