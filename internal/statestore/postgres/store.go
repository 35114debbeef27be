// SPDX-License-Identifier: Apache-2.0

// Package postgres implements statestore.Store on a single key/value table.
// Compare-and-swap is a conditional UPDATE on the previously read value, so
// concurrent writers never silently overwrite each other.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ericcgu/eg-mist-orchestration-core/internal/statestore"
)

// Store implements statestore.Store backed by the kv_records table.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ statestore.Store = (*Store)(nil)

// New creates a Postgres-backed store. The caller owns the pool lifecycle.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `
		SELECT value FROM kv_records
		WHERE key = $1
		  AND (expires_at IS NULL OR expires_at > NOW())
	`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, statestore.ErrKeyNotFound
		}
		return nil, fmt.Errorf("statestore/postgres: get: %w", err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_records (key, value, updated_at, expires_at)
		VALUES ($1, $2, NOW(), $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    updated_at = NOW(),
		    expires_at = EXCLUDED.expires_at
	`, key, value, expiry(ttl))
	if err != nil {
		return fmt.Errorf("statestore/postgres: set: %w", err)
	}
	return nil
}

func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	// An expired row counts as absent and may be reclaimed.
	cmd, err := s.pool.Exec(ctx, `
		INSERT INTO kv_records (key, value, updated_at, expires_at)
		VALUES ($1, $2, NOW(), $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    updated_at = NOW(),
		    expires_at = EXCLUDED.expires_at
		WHERE kv_records.expires_at IS NOT NULL
		  AND kv_records.expires_at <= NOW()
	`, key, value, expiry(ttl))
	if err != nil {
		return false, fmt.Errorf("statestore/postgres: setnx: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) error {
	cmd, err := s.pool.Exec(ctx, `
		UPDATE kv_records
		SET value = $3,
		    updated_at = NOW(),
		    expires_at = $4
		WHERE key = $1
		  AND value = $2
		  AND (expires_at IS NULL OR expires_at > NOW())
	`, key, old, value, expiry(ttl))
	if err != nil {
		return fmt.Errorf("statestore/postgres: cas: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return statestore.ErrCASMismatch
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) (int64, error) {
	cmd, err := s.pool.Exec(ctx, `DELETE FROM kv_records WHERE key = $1`, key)
	if err != nil {
		return 0, fmt.Errorf("statestore/postgres: delete: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM kv_records
			WHERE key = $1
			  AND (expires_at IS NULL OR expires_at > NOW())
		)
	`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("statestore/postgres: exists: %w", err)
	}
	return exists, nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT key FROM kv_records
		WHERE key LIKE $1 || '%'
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY key
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("statestore/postgres: keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("statestore/postgres: keys scan: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("statestore/postgres: keys rows: %w", err)
	}
	return keys, nil
}

func expiry(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := time.Now().UTC().Add(ttl)
	return &t
}
