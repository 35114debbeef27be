// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ericcgu/eg-mist-orchestration-core/internal/statestore"
)

func TestGetSetRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.Get(ctx, "deployment:s1"); !errors.Is(err, statestore.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	if err := s.Set(ctx, "deployment:s1", []byte("v1"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := s.Get(ctx, "deployment:s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("expected v1, got %s", got)
	}
}

func TestSetNX(t *testing.T) {
	s := New()
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "k", []byte("first"), 0)
	if err != nil || !ok {
		t.Fatalf("expected first SetNX to win, ok=%v err=%v", ok, err)
	}

	ok, err = s.SetNX(ctx, "k", []byte("second"), 0)
	if err != nil {
		t.Fatalf("setnx: %v", err)
	}
	if ok {
		t.Fatal("expected second SetNX to lose")
	}

	got, _ := s.Get(ctx, "k")
	if string(got) != "first" {
		t.Fatalf("expected first value kept, got %s", got)
	}
}

func TestCompareAndSwap(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CompareAndSwap(ctx, "k", []byte("old"), []byte("new"), 0); !errors.Is(err, statestore.ErrCASMismatch) {
		t.Fatalf("expected mismatch on absent key, got %v", err)
	}

	_ = s.Set(ctx, "k", []byte("old"), 0)

	if err := s.CompareAndSwap(ctx, "k", []byte("stale"), []byte("new"), 0); !errors.Is(err, statestore.ErrCASMismatch) {
		t.Fatalf("expected mismatch on stale read, got %v", err)
	}

	if err := s.CompareAndSwap(ctx, "k", []byte("old"), []byte("new"), 0); err != nil {
		t.Fatalf("expected cas to succeed, got %v", err)
	}

	got, _ := s.Get(ctx, "k")
	if string(got) != "new" {
		t.Fatalf("expected new value, got %s", got)
	}
}

func TestDeleteAndExists(t *testing.T) {
	s := New()
	ctx := context.Background()

	if n, _ := s.Delete(ctx, "k"); n != 0 {
		t.Fatalf("expected delete of absent key to report 0, got %d", n)
	}

	_ = s.Set(ctx, "k", []byte("v"), 0)

	exists, _ := s.Exists(ctx, "k")
	if !exists {
		t.Fatal("expected key to exist")
	}

	if n, _ := s.Delete(ctx, "k"); n != 1 {
		t.Fatalf("expected delete to report 1, got %d", n)
	}

	exists, _ = s.Exists(ctx, "k")
	if exists {
		t.Fatal("expected key to be gone")
	}
}

func TestKeysByPrefix(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.Set(ctx, "deployment:s1", []byte("a"), 0)
	_ = s.Set(ctx, "deployment:s2", []byte("b"), 0)
	_ = s.Set(ctx, "lock:s1", []byte("c"), 0)

	keys, err := s.Keys(ctx, "deployment:")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
	if keys[0] != "deployment:s1" || keys[1] != "deployment:s2" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestExpiry(t *testing.T) {
	s := New()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	_ = s.Set(ctx, "k", []byte("v"), time.Minute)

	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("expected record before expiry, got %v", err)
	}

	s.now = func() time.Time { return now.Add(2 * time.Minute) }

	if _, err := s.Get(ctx, "k"); !errors.Is(err, statestore.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound after expiry, got %v", err)
	}
	if exists, _ := s.Exists(ctx, "k"); exists {
		t.Fatal("expected expired key to report absent")
	}
	if keys, _ := s.Keys(ctx, ""); len(keys) != 0 {
		t.Fatalf("expected expired key hidden from enumeration, got %v", keys)
	}
	if ok, _ := s.SetNX(ctx, "k", []byte("v2"), 0); !ok {
		t.Fatal("expected SetNX to reclaim an expired key")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.Set(ctx, "k", []byte("abc"), 0)

	got, _ := s.Get(ctx, "k")
	got[0] = 'x'

	fresh, _ := s.Get(ctx, "k")
	if string(fresh) != "abc" {
		t.Fatalf("expected stored value untouched, got %s", fresh)
	}
}
