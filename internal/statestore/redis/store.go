// SPDX-License-Identifier: Apache-2.0

// Package redis implements statestore.Store on Redis. Records are plain
// string values; compare-and-swap uses WATCH/MULTI/EXEC so a concurrent
// writer invalidates the transaction instead of being clobbered.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
package redis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ericcgu/eg-mist-orchestration-core/internal/statestore"
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements statestore.Store backed by Redis.
type Store struct {
	client redis.UniversalClient
	logger *slog.Logger
}

var _ statestore.Store = (*Store)(nil)

// New creates a Redis-backed store. The caller owns the client lifecycle.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, statestore.ErrKeyNotFound
		}
		return nil, fmt.Errorf("statestore/redis: get: %w", err)
	}
	return val, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("statestore/redis: set: %w", err)
	}
	return nil
}

func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("statestore/redis: setnx: %w", err)
	}
	return ok, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) error {
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return statestore.ErrCASMismatch
		}
		if err != nil {
			return err
		}
		if !bytes.Equal(cur, old) {
			return statestore.ErrCASMismatch
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, value, ttl)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, statestore.ErrCASMismatch):
		return statestore.ErrCASMismatch
	case errors.Is(err, redis.TxFailedErr):
		// EXEC aborted: the watched key changed under us.
		return statestore.ErrCASMismatch
	default:
		return fmt.Errorf("statestore/redis: cas: %w", err)
	}
}

func (s *Store) Delete(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("statestore/redis: delete: %w", err)
	}
	return n, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("statestore/redis: exists: %w", err)
	}
	return n > 0, nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("statestore/redis: keys: %w", err)
	}
	return keys, nil
}
