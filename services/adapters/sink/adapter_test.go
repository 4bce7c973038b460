package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/action-gate/models"
	"go.uber.org/zap/zaptest"
)

func TestSinkRecordsAndFails(t *testing.T) {
	a := New(models.ChannelSMS, zaptest.NewLogger(t))
	ctx := context.Background()

	a.FailNext(errors.New("first"), errors.New("second"))

	_, err := a.Send(ctx, "+1555", models.Payload{InvocationID: "a"})
	assert.EqualError(t, err, "first")
	_, err = a.Send(ctx, "+1555", models.Payload{InvocationID: "a"})
	assert.EqualError(t, err, "second")

	res, err := a.Send(ctx, "+1555", models.Payload{InvocationID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "sms-1", res.Reference)

	deliveries := a.Deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, "+1555", deliveries[0].Destination)
}

func TestSinkHonoursCancellation(t *testing.T) {
	a := New(models.ChannelEmail, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Send(ctx, "x@y", models.Payload{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, a.Deliveries())
}
