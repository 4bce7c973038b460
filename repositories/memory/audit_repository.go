package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
)

// AuditRepository is an append-only in-memory audit store. Records are
// immutable once appended; the sequence number breaks timestamp ties.
type AuditRepository struct {
	mu      sync.RWMutex
	records []models.AuditRecord
	seq     int64
}

// NewAuditRepository creates an empty store
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

// Append stores a copy of record and assigns the next sequence number
func (r *AuditRepository) Append(_ context.Context, record *models.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	record.Sequence = r.seq
	r.records = append(r.records, *record)
	return nil
}

// Query filters, orders by timestamp ascending and pages
func (r *AuditRepository) Query(_ context.Context, filter models.AuditFilter) ([]*models.AuditRecord, int, error) {
	filter.Normalize()

	r.mu.RLock()
	var matched []*models.AuditRecord
	for i := range r.records {
		if filter.Matches(&r.records[i]) {
			rec := r.records[i]
			matched = append(matched, &rec)
		}
	}
	r.mu.RUnlock()

	sortRecords(matched)

	total := len(matched)
	start := filter.Offset()
	if start < 0 || start >= total {
		return []*models.AuditRecord{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// LatestForInvocation returns the newest record of an invocation
func (r *AuditRepository) LatestForInvocation(_ context.Context, invocationID string) (*models.AuditRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *models.AuditRecord
	for i := range r.records {
		rec := &r.records[i]
		if rec.InvocationID != invocationID {
			continue
		}
		if latest == nil || rec.Timestamp.After(latest.Timestamp) ||
			(rec.Timestamp.Equal(latest.Timestamp) && rec.Sequence > latest.Sequence) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, repositories.ErrNotFound
	}
	out := *latest
	return &out, nil
}

// Len returns the number of stored records
func (r *AuditRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func sortRecords(records []*models.AuditRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Sequence < records[j].Sequence
		}
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}
