package services

import (
	"context"
	"fmt"

	"github.com/upb/action-gate/repositories"
)

// WithTransaction runs fn inside a transaction from txMgr, committing on
// success and rolling back on error or panic. fn receives the transaction's
// context so repositories called with it join the transaction.
// A nil txMgr runs fn directly against ctx.
func WithTransaction(ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context) error) error {
	if txMgr == nil {
		return fn(ctx)
	}

	tx, err := txMgr.Begin(ctx)
	if err != nil {
		return WrapInternal("failed to begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx.Context()); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return WrapInternal("failed to commit transaction", err)
	}
	return nil
}
