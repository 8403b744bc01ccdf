package repository

import (
	"context"
	"time"

	"github.com/wagerdash/connect-service/internal/domain/connect"
)

// StateStore persists short-lived authorization state records between the
// authorize redirect and the provider callback.
type StateStore interface {
	// Put persists a new record expiring after ttl.
	Put(ctx context.Context, state connect.AuthState, ttl time.Duration) error
	// Consume atomically removes and returns the record matching both
	// userID and state. It returns connect.ErrStateNotFound when no record
	// matches (never existed, wrong user, or swept) and
	// connect.ErrStateExpired when the record outlived its TTL. At most one
	// concurrent Consume for the same pair can succeed.
	Consume(ctx context.Context, userID int64, state string) (*connect.AuthState, error)
	// Delete removes a record if present. Idempotent.
	Delete(ctx context.Context, userID int64, state string) error
}

// ConnectionStore persists the durable per-user, per-provider token record.
type ConnectionStore interface {
	Get(ctx context.Context, userID int64, provider string) (*connect.Connection, error)
	// Upsert inserts or replaces the record for (user_id, provider). Token
	// fields, expiry, scope, and updated_at move together in one statement.
	Upsert(ctx context.Context, conn connect.Connection) (*connect.Connection, error)
	Delete(ctx context.Context, userID int64, provider string) error
}

// PreferenceStore exposes the stored user preferences gating the
// authorize flow.
type PreferenceStore interface {
	GetTimezone(ctx context.Context, userID int64) (string, error)
}
