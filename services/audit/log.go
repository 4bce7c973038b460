// Package audit is the append-only lifecycle record of every invocation.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"github.com/upb/action-gate/services"
	"go.uber.org/zap"
)

// Log writes and reads audit records. Appends are synchronous: a failed
// append is returned to the caller as an AuditWriteError and never dropped.
type Log struct {
	repo   repositories.AuditRepository
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Log
type Option func(*Log)

// WithClock overrides the time source used for record timestamps
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// NewLog creates a Log over repo
func NewLog(repo repositories.AuditRepository, logger *zap.Logger, opts ...Option) *Log {
	l := &Log{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the log's current time in UTC
func (l *Log) Now() time.Time {
	return l.now().UTC()
}

// Append stores rec. A zero timestamp is filled from the log's clock.
func (l *Log) Append(ctx context.Context, rec *models.AuditRecord) error {
	if !rec.Event.IsValid() {
		return services.NewDomainError(services.ErrorTypeInternal, fmt.Sprintf("unknown audit event %q", rec.Event), nil)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.Now()
	}

	if err := l.repo.Append(ctx, rec); err != nil {
		l.logger.Error("failed to append audit record",
			zap.Error(err),
			zap.String("invocation_id", rec.InvocationID),
			zap.String("event", string(rec.Event)))
		return services.WrapAuditWrite("failed to append audit record", err)
	}

	l.logger.Debug("audit record appended",
		zap.String("invocation_id", rec.InvocationID),
		zap.String("event", string(rec.Event)),
		zap.Int64("sequence", rec.Sequence))
	return nil
}

// Record builds a record for inv and appends it
func (l *Log) Record(ctx context.Context, inv *models.Invocation, event models.AuditEvent, actor, detail string) (*models.AuditRecord, error) {
	rec := models.NewAuditRecord(inv, event, l.Now()).WithActor(actor).WithDetail(detail)
	if err := l.Append(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Query returns one page of matching records ordered by timestamp ascending
func (l *Log) Query(ctx context.Context, filter models.AuditFilter) (*models.AuditPage, error) {
	filter.Normalize()
	if filter.Channel != "" && !filter.Channel.IsValid() {
		return nil, services.ErrUnknownChannel
	}
	if filter.Event != "" && !filter.Event.IsValid() {
		return nil, services.NewDomainError(services.ErrorTypeValidation, fmt.Sprintf("unknown status %q", filter.Event), nil)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "date range end precedes its start", nil)
	}

	records, total, err := l.repo.Query(ctx, filter)
	if err != nil {
		return nil, services.WrapInternal("failed to query audit log", err)
	}
	if records == nil {
		records = []*models.AuditRecord{}
	}
	return &models.AuditPage{
		Records:  records,
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Total:    total,
	}, nil
}

// Latest returns the newest record for an invocation, or nil when there is none
func (l *Log) Latest(ctx context.Context, invocationID string) (*models.AuditRecord, error) {
	rec, err := l.repo.LatestForInvocation(ctx, invocationID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, services.WrapInternal("failed to read audit log", err)
	}
	return rec, nil
}
