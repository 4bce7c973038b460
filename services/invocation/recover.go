package invocation

import (
	"context"
	"sync/atomic"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/services"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RecoverReport summarizes a recovery pass
type RecoverReport struct {
	Submitted int `json:"submitted"`
	Approved  int `json:"approved"`
	Failed    int `json:"failed"`
}

// Recover re-drives invocations left behind by an interrupted process or a
// failed audit write: Submitted ones go through admission again and Approved
// ones are dispatched. Dispatched invocations are left alone because their
// side effect may already have happened. Individual failures are logged and
// counted, not returned.
func (s *Service) Recover(ctx context.Context, limit, workers int) (RecoverReport, error) {
	var report RecoverReport

	submitted, err := s.repo.ListByStatus(ctx, models.InvocationStatusSubmitted, limit)
	if err != nil {
		return report, services.WrapInternal("failed to list submitted invocations", err)
	}
	approved, err := s.repo.ListByStatus(ctx, models.InvocationStatusApproved, limit)
	if err != nil {
		return report, services.WrapInternal("failed to list approved invocations", err)
	}
	report.Submitted = len(submitted)
	report.Approved = len(approved)

	if workers < 1 {
		workers = 1
	}
	var failed int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	run := func(inv *models.Invocation, step func(context.Context, *models.Invocation) error) {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if err := step(gctx, inv); err != nil && !services.IsValidationError(err) {
				atomic.AddInt32(&failed, 1)
				s.logger.Warn("recovery step failed",
					zap.String("invocation_id", inv.ID),
					zap.String("status", string(inv.Status)),
					zap.Error(err))
			}
			return nil
		})
	}

	for _, inv := range submitted {
		run(inv, func(ctx context.Context, inv *models.Invocation) error {
			entry, err := s.entryFor(inv)
			if err != nil {
				return err
			}
			_, err = s.advance(ctx, inv, entry)
			return err
		})
	}
	for _, inv := range approved {
		run(inv, func(ctx context.Context, inv *models.Invocation) error {
			entry, err := s.entryFor(inv)
			if err != nil {
				return err
			}
			_, err = s.dispatch(ctx, inv, entry)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	report.Failed = int(failed)

	if report.Submitted+report.Approved > 0 {
		s.logger.Info("recovered stranded invocations",
			zap.Int("submitted", report.Submitted),
			zap.Int("approved", report.Approved),
			zap.Int("failed", report.Failed))
	}
	return report, nil
}
