// SPDX-License-Identifier: Apache-2.0

// Package statestore defines the keyed durable storage contract the workflow
// engine persists deployments through, plus the shared key naming helpers.
// Backends live in subpackages (memory, redis, postgres).
package statestore

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by Get when no record exists under the key.
var ErrKeyNotFound = errors.New("statestore: key not found")

// ErrCASMismatch is returned by CompareAndSwap when the stored value no
// longer matches the bytes the caller read, or the key disappeared.
var ErrCASMismatch = errors.New("statestore: compare-and-swap mismatch")

// Store is a durable, keyed, byte-valued storage capability with optional
// per-key expiry. A ttl of zero means the record never expires.
//
// CompareAndSwap is value-level: the write succeeds only when the stored
// bytes are still identical to old. Callers that need lost-update protection
// read, mutate, and swap against the exact bytes they read.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
}
