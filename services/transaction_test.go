package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/upb/action-gate/repositories"
)

type txKey struct{}

// MockTransactionManager is a mock implementation of TransactionManager
type MockTransactionManager struct {
	mock.Mock
}

func (m *MockTransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	args := m.Called(ctx)
	if tx := args.Get(0); tx != nil {
		return tx.(repositories.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

// MockTransaction is a mock implementation of Transaction
type MockTransaction struct {
	mock.Mock
	ctx context.Context
}

func (m *MockTransaction) Commit() error {
	return m.Called().Error(0)
}

func (m *MockTransaction) Rollback() error {
	return m.Called().Error(0)
}

func (m *MockTransaction) Context() context.Context {
	return m.ctx
}

func newMocks(ctx context.Context) (*MockTransactionManager, *MockTransaction) {
	txm := new(MockTransactionManager)
	tx := &MockTransaction{ctx: context.WithValue(ctx, txKey{}, "tx-1")}
	txm.On("Begin", ctx).Return(tx, nil)
	return txm, tx
}

func TestWithTransaction_Commit(t *testing.T) {
	ctx := context.Background()
	txm, tx := newMocks(ctx)
	tx.On("Commit").Return(nil)

	var seen interface{}
	err := WithTransaction(ctx, txm, func(ctx context.Context) error {
		seen = ctx.Value(txKey{})
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "tx-1", seen, "fn runs on the transaction context")
	txm.AssertExpectations(t)
	tx.AssertExpectations(t)
	tx.AssertNotCalled(t, "Rollback")
}

func TestWithTransaction_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	txm, tx := newMocks(ctx)
	tx.On("Rollback").Return(nil)
	boom := errors.New("audit append failed")

	err := WithTransaction(ctx, txm, func(context.Context) error { return boom })

	assert.ErrorIs(t, err, boom)
	tx.AssertNotCalled(t, "Commit")
	tx.AssertExpectations(t)
}

func TestWithTransaction_RollbackError(t *testing.T) {
	ctx := context.Background()
	txm, tx := newMocks(ctx)
	tx.On("Rollback").Return(errors.New("connection lost"))

	err := WithTransaction(ctx, txm, func(context.Context) error { return errors.New("boom") })

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "connection lost")
}

func TestWithTransaction_BeginFailure(t *testing.T) {
	ctx := context.Background()
	txm := new(MockTransactionManager)
	txm.On("Begin", ctx).Return(nil, errors.New("pool exhausted"))

	called := false
	err := WithTransaction(ctx, txm, func(context.Context) error { called = true; return nil })

	assert.True(t, IsInternalError(err))
	assert.False(t, called)
}

func TestWithTransaction_CommitFailure(t *testing.T) {
	ctx := context.Background()
	txm, tx := newMocks(ctx)
	tx.On("Commit").Return(errors.New("serialization failure"))

	err := WithTransaction(ctx, txm, func(context.Context) error { return nil })
	assert.True(t, IsInternalError(err))
}

func TestWithTransaction_PanicRollsBack(t *testing.T) {
	ctx := context.Background()
	txm, tx := newMocks(ctx)
	tx.On("Rollback").Return(nil)

	assert.Panics(t, func() {
		_ = WithTransaction(ctx, txm, func(context.Context) error { panic("boom") })
	})
	tx.AssertCalled(t, "Rollback")
}

func TestWithTransaction_NilManager(t *testing.T) {
	ctx := context.WithValue(context.Background(), txKey{}, "plain")
	var seen interface{}
	err := WithTransaction(ctx, nil, func(ctx context.Context) error {
		seen = ctx.Value(txKey{})
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "plain", seen)
}
