// SPDX-License-Identifier: Apache-2.0

package statestore

import (
	"context"
	"time"
)

// Noop is the "no backing store" mode: every read reports absent and every
// write is accepted and discarded. The engine degrades to returning transient,
// unpersisted state, which is the behavior tests and dry runs rely on.
type Noop struct{}

var _ Store = Noop{}

func (Noop) Get(_ context.Context, _ string) ([]byte, error) {
	return nil, ErrKeyNotFound
}

func (Noop) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}

func (Noop) SetNX(_ context.Context, _ string, _ []byte, _ time.Duration) (bool, error) {
	return true, nil
}

func (Noop) CompareAndSwap(_ context.Context, _ string, _, _ []byte, _ time.Duration) error {
	return nil
}

func (Noop) Delete(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

func (Noop) Exists(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (Noop) Keys(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}
