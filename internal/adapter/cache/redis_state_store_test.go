package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/wagerdash/connect-service/internal/domain/connect"
)

func setupStateStore(t *testing.T) (*RedisStateStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStateStore(client), mr
}

func testState(userID int64, state string) connect.AuthState {
	return connect.AuthState{
		UserID:       userID,
		State:        state,
		CodeVerifier: "verifier-" + state,
		Provider:     "kick",
	}
}

func TestStateStore_ConsumeOnce(t *testing.T) {
	store, _ := setupStateStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testState(7, "abc"), 10*time.Minute))

	record, err := store.Consume(ctx, 7, "abc")
	require.NoError(t, err)
	require.Equal(t, int64(7), record.UserID)
	require.Equal(t, "verifier-abc", record.CodeVerifier)
	require.Equal(t, "kick", record.Provider)

	// Second consume of the same pair finds nothing.
	_, err = store.Consume(ctx, 7, "abc")
	require.ErrorIs(t, err, connect.ErrStateNotFound)
}

func TestStateStore_WrongUserIsNotFound(t *testing.T) {
	store, _ := setupStateStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testState(7, "abc"), 10*time.Minute))

	_, err := store.Consume(ctx, 8, "abc")
	require.ErrorIs(t, err, connect.ErrStateNotFound)

	// The record still belongs to its owner.
	_, err = store.Consume(ctx, 7, "abc")
	require.NoError(t, err)
}

func TestStateStore_Expired(t *testing.T) {
	store, mr := setupStateStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testState(7, "abc"), 10*time.Minute))

	// Rewrite the payload with a past expiry; the key itself is still held
	// by the grace TTL.
	key := stateKey(7, "abc")
	raw, err := mr.Get(key)
	require.NoError(t, err)
	var record connect.AuthState
	require.NoError(t, json.Unmarshal([]byte(raw), &record))
	record.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	rewritten, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, mr.Set(key, string(rewritten)))

	_, err = store.Consume(ctx, 7, "abc")
	require.ErrorIs(t, err, connect.ErrStateExpired)
}

func TestStateStore_SweptByRedisTTL(t *testing.T) {
	store, mr := setupStateStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testState(7, "abc"), time.Minute))

	mr.FastForward(time.Minute + expiredGrace + time.Second)

	_, err := store.Consume(ctx, 7, "abc")
	require.ErrorIs(t, err, connect.ErrStateNotFound)
}

func TestStateStore_DeleteIdempotent(t *testing.T) {
	store, _ := setupStateStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testState(7, "abc"), time.Minute))
	require.NoError(t, store.Delete(ctx, 7, "abc"))
	require.NoError(t, store.Delete(ctx, 7, "abc"))

	_, err := store.Consume(ctx, 7, "abc")
	require.ErrorIs(t, err, connect.ErrStateNotFound)
}

func TestStateStore_ConcurrentAuthorizeKeepsBoth(t *testing.T) {
	store, _ := setupStateStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testState(7, "first"), time.Minute))
	require.NoError(t, store.Put(ctx, testState(7, "second"), time.Minute))

	record, err := store.Consume(ctx, 7, "second")
	require.NoError(t, err)
	require.Equal(t, "verifier-second", record.CodeVerifier)

	// The orphaned first attempt stays until its TTL sweeps it.
	record, err = store.Consume(ctx, 7, "first")
	require.NoError(t, err)
	require.Equal(t, "verifier-first", record.CodeVerifier)
}
