package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wagerdash/connect-service/internal/domain/connect"
)

// Compile-time interface assertions.
var (
	_ ConnectionStore = (*PostgresConnectionStore)(nil)
	_ PreferenceStore = (*PostgresPreferenceStore)(nil)
)

// PostgresConnectionStore implements ConnectionStore on pgx.
type PostgresConnectionStore struct {
	pool *pgxpool.Pool
	node *snowflake.Node
}

func NewPostgresConnectionStore(pool *pgxpool.Pool, node *snowflake.Node) *PostgresConnectionStore {
	return &PostgresConnectionStore{pool: pool, node: node}
}

func (s *PostgresConnectionStore) Get(ctx context.Context, userID int64, provider string) (*connect.Connection, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, provider, access_token, refresh_token, expires_at,
		       token_type, scope, created_at, updated_at
		FROM connections
		WHERE user_id = $1 AND provider = $2`,
		userID, provider,
	)

	var conn connect.Connection
	err := row.Scan(
		&conn.ID, &conn.UserID, &conn.Provider,
		&conn.AccessToken, &conn.RefreshToken, &conn.ExpiresAt,
		&conn.TokenType, &conn.Scope, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, connect.ErrConnectionNotFound
		}
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return &conn, nil
}

// Upsert writes the full token record in a single statement so access token,
// refresh token, and expiry can never disagree.
func (s *PostgresConnectionStore) Upsert(ctx context.Context, conn connect.Connection) (*connect.Connection, error) {
	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO connections
			(id, user_id, provider, access_token, refresh_token, expires_at,
			 token_type, scope, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			token_type = EXCLUDED.token_type,
			scope = EXCLUDED.scope,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`,
		s.node.Generate().Int64(), conn.UserID, conn.Provider,
		conn.AccessToken, conn.RefreshToken, conn.ExpiresAt,
		conn.TokenType, conn.Scope, now,
	)

	if err := row.Scan(&conn.ID, &conn.CreatedAt, &conn.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert connection: %w", err)
	}
	return &conn, nil
}

func (s *PostgresConnectionStore) Delete(ctx context.Context, userID int64, provider string) error {
	if _, err := s.pool.Exec(ctx, `
		DELETE FROM connections WHERE user_id = $1 AND provider = $2`,
		userID, provider,
	); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}

// PostgresPreferenceStore implements PreferenceStore on pgx.
type PostgresPreferenceStore struct {
	pool *pgxpool.Pool
}

func NewPostgresPreferenceStore(pool *pgxpool.Pool) *PostgresPreferenceStore {
	return &PostgresPreferenceStore{pool: pool}
}

// GetTimezone returns the user's stored timezone, or "" when unset.
func (s *PostgresPreferenceStore) GetTimezone(ctx context.Context, userID int64) (string, error) {
	var tz *string
	err := s.pool.QueryRow(ctx, `
		SELECT timezone FROM user_preferences WHERE user_id = $1`,
		userID,
	).Scan(&tz)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get timezone: %w", err)
	}
	if tz == nil {
		return "", nil
	}
	return *tz, nil
}
