package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wagerdash/connect-service/internal/domain/connect"
	"github.com/wagerdash/connect-service/internal/repository"
)

const statePrefix = "connect:state:"

// expiredGrace keeps a passed-TTL payload around long enough for Consume to
// report ErrStateExpired instead of ErrStateNotFound. After the grace window
// Redis sweeps the key and the distinction collapses.
const expiredGrace = 5 * time.Minute

// RedisStateStore implements repository.StateStore backed by Redis. Key TTLs
// double as the sweep policy for abandoned authorization attempts.
type RedisStateStore struct {
	client redis.UniversalClient
}

var _ repository.StateStore = (*RedisStateStore)(nil)

// NewRedisStateStore constructs a Redis-backed state store.
func NewRedisStateStore(client redis.UniversalClient) *RedisStateStore {
	return &RedisStateStore{client: client}
}

// Put stores the encoded state payload keyed by (user_id, state).
func (s *RedisStateStore) Put(ctx context.Context, state connect.AuthState, ttl time.Duration) error {
	now := time.Now().UTC()
	state.CreatedAt = now
	state.ExpiresAt = now.Add(ttl)

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	key := stateKey(state.UserID, state.State)
	if err := s.client.Set(ctx, key, payload, ttl+expiredGrace).Err(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// Consume removes and returns the record in one GETDEL, so concurrent
// callbacks carrying the same state race at the store and exactly one wins.
func (s *RedisStateStore) Consume(ctx context.Context, userID int64, state string) (*connect.AuthState, error) {
	key := stateKey(userID, state)
	payload, err := s.client.GetDel(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, connect.ErrStateNotFound
		}
		return nil, fmt.Errorf("load state: %w", err)
	}

	var record connect.AuthState
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if time.Now().UTC().After(record.ExpiresAt) {
		return nil, connect.ErrStateExpired
	}
	return &record, nil
}

// Delete removes the persisted state key if still present.
func (s *RedisStateStore) Delete(ctx context.Context, userID int64, state string) error {
	if err := s.client.Del(ctx, stateKey(userID, state)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

func stateKey(userID int64, state string) string {
	return fmt.Sprintf("%s%d:%s", statePrefix, userID, state)
}
