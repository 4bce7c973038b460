package mode

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"go.uber.org/zap/zaptest"
)

// TestRedisStore_Integration requires a running Redis. It is skipped when
// none answers on REDIS_ADDR (default localhost:6379).
func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisStore(client, "actiongate-test-"+uuid.NewString())
	if err := store.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}
	t.Cleanup(func() {
		for _, ch := range models.DispatchChannels {
			client.Del(ctx, store.stateKey(ch), store.historyKey(ch))
		}
	})

	_, err := store.Load(ctx, models.ChannelEmail)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	c := NewController(store, zaptest.NewLogger(t), WithClock(func() time.Time { return fixedNow }))
	_, err = c.Switch(ctx, SwitchRequest{Channel: models.ChannelEmail, Mode: models.ModeLive, ChangedBy: "alice"})
	require.NoError(t, err)

	st, err := c.GetMode(ctx, models.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, models.ModeLive, st.Mode)
	assert.Equal(t, int64(1), st.Version)

	// stale version loses
	stale := st.Next(models.ModeSafe, "bob", fixedNow)
	ok, err := store.CompareAndSwap(ctx, stale, 0, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	history, err := c.History(ctx, models.ChannelEmail, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.ModeSafe, history[0].PreviousMode)
	assert.Equal(t, models.ModeLive, history[0].NewMode)
}
