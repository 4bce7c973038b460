package mode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
)

// redisSwapScript replaces a channel's state only when its version matches
// and pushes the change record in the same atomic step.
// KEYS[1] = state hash, KEYS[2] = history list
// ARGV[1] = expected version, ARGV[2] = new version, ARGV[3] = state json,
// ARGV[4] = change json, ARGV[5] = history cap
var redisSwapScript = redis.NewScript(`
local current = tonumber(redis.call("HGET", KEYS[1], "version") or "0")
if current ~= tonumber(ARGV[1]) then
    return 0
end
redis.call("HSET", KEYS[1], "version", ARGV[2], "state", ARGV[3])
if ARGV[4] ~= "" then
    redis.call("LPUSH", KEYS[2], ARGV[4])
    redis.call("LTRIM", KEYS[2], 0, tonumber(ARGV[5]) - 1)
end
return 1
`)

const defaultHistoryCap = 1000

// RedisStore keeps mode state in Redis so several engine instances share one
// view of every channel
type RedisStore struct {
	client     redis.UniversalClient
	prefix     string
	historyCap int
}

// NewRedisStore creates a store using client. Keys are namespaced by prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "actiongate"
	}
	return &RedisStore{client: client, prefix: prefix, historyCap: defaultHistoryCap}
}

func (s *RedisStore) stateKey(ch models.Channel) string {
	return fmt.Sprintf("%s:mode:%s", s.prefix, ch)
}

func (s *RedisStore) historyKey(ch models.Channel) string {
	return fmt.Sprintf("%s:mode:%s:history", s.prefix, ch)
}

// Load returns the stored state or repositories.ErrNotFound
func (s *RedisStore) Load(ctx context.Context, channel models.Channel) (*models.ModeState, error) {
	raw, err := s.client.HGet(ctx, s.stateKey(channel), "state").Result()
	if errors.Is(err, redis.Nil) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis mode load error: %w", err)
	}

	var st models.ModeState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("failed to decode mode state: %w", err)
	}
	return &st, nil
}

// CompareAndSwap runs the swap script
func (s *RedisStore) CompareAndSwap(ctx context.Context, next models.ModeState, expectedVersion int64, change *models.ModeChange) (bool, error) {
	state, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("failed to encode mode state: %w", err)
	}
	var changeJSON []byte
	if change != nil {
		if changeJSON, err = json.Marshal(change); err != nil {
			return false, fmt.Errorf("failed to encode mode change: %w", err)
		}
	}

	keys := []string{s.stateKey(next.Channel), s.historyKey(next.Channel)}
	res, err := redisSwapScript.Run(ctx, s.client, keys,
		expectedVersion, next.Version, string(state), string(changeJSON), s.historyCap).Int64()
	if err != nil {
		return false, fmt.Errorf("redis mode swap error: %w", err)
	}
	return res == 1, nil
}

// History returns up to limit changes, newest first
func (s *RedisStore) History(ctx context.Context, channel models.Channel, limit int) ([]*models.ModeChange, error) {
	if limit <= 0 {
		limit = 100
	}
	raws, err := s.client.LRange(ctx, s.historyKey(channel), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mode history error: %w", err)
	}

	out := make([]*models.ModeChange, 0, len(raws))
	for _, raw := range raws {
		var c models.ModeChange
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("failed to decode mode change: %w", err)
		}
		out = append(out, &c)
	}
	return out, nil
}

// Ping checks connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var _ repositories.ModeRepository = (*RedisStore)(nil)
