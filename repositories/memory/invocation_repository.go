// Package memory provides in-process repositories for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
)

// InvocationRepository keeps invocations in a map guarded by a mutex.
// Every read and write copies, so callers never share state with the store.
type InvocationRepository struct {
	mu    sync.RWMutex
	items map[string]*models.Invocation
}

// NewInvocationRepository creates an empty repository
func NewInvocationRepository() *InvocationRepository {
	return &InvocationRepository{items: make(map[string]*models.Invocation)}
}

// Create inserts inv or returns ErrDuplicate
func (r *InvocationRepository) Create(_ context.Context, inv *models.Invocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[inv.ID]; exists {
		return repositories.ErrDuplicate
	}
	r.items[inv.ID] = inv.Clone()
	return nil
}

// GetByID returns a copy of the stored invocation
func (r *InvocationRepository) GetByID(_ context.Context, id string) (*models.Invocation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inv, ok := r.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return inv.Clone(), nil
}

// CompareAndSwap replaces the stored invocation when its status equals expected
func (r *InvocationRepository) CompareAndSwap(_ context.Context, inv *models.Invocation, expected models.InvocationStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[inv.ID]
	if !ok {
		return false, repositories.ErrNotFound
	}
	if current.Status != expected {
		return false, nil
	}
	r.items[inv.ID] = inv.Clone()
	return true, nil
}

// ListByStatus returns invocations in status ordered by submission time
func (r *InvocationRepository) ListByStatus(_ context.Context, status models.InvocationStatus, limit int) ([]*models.Invocation, error) {
	r.mu.RLock()
	var out []*models.Invocation
	for _, inv := range r.items {
		if inv.Status == status {
			out = append(out, inv.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
