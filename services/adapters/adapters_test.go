package adapters_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/services/adapters"
	"github.com/upb/action-gate/services/adapters/sink"
	"go.uber.org/zap"
)

func TestRegistry(t *testing.T) {
	r := adapters.NewRegistry()

	require.NoError(t, r.RegisterAdapter(sink.New(models.ChannelSMS, zap.NewNop())))
	require.NoError(t, r.RegisterAdapter(sink.New(models.ChannelEmail, zap.NewNop())))

	err := r.RegisterAdapter(sink.New(models.ChannelEmail, zap.NewNop()))
	assert.ErrorIs(t, err, adapters.ErrAdapterAlreadyRegistered)

	assert.Error(t, r.RegisterAdapter(nil))
	assert.Error(t, r.RegisterAdapter(sink.New("fax", zap.NewNop())))

	a, err := r.GetAdapter(models.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelEmail, a.Channel())

	_, err = r.GetAdapter(models.ChannelAPI)
	assert.ErrorIs(t, err, adapters.ErrAdapterNotFound)

	assert.Equal(t, []models.Channel{models.ChannelEmail, models.ChannelSMS}, r.Channels())
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable adapter error", adapters.NewAdapterError("x", "HTTP_503", "unavailable", 503, true, nil), true},
		{"permanent adapter error", adapters.NewAdapterError("x", "HTTP_400", "bad request", 400, false, nil), false},
		{"wrapped adapter error", fmt.Errorf("send: %w", adapters.NewAdapterError("x", "c", "m", 0, false, nil)), false},
		{"plain error", errors.New("connection reset"), true},
		{"cancelled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, adapters.IsRetryable(tt.err))
		})
	}
}

func TestAdapterErrorMessage(t *testing.T) {
	err := adapters.NewAdapterError("webhook", "HTTP_ERROR", "request failed", 0, true, errors.New("dial tcp: refused"))
	assert.Equal(t, "request failed: dial tcp: refused", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "dial tcp: refused")
}
