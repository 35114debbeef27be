// SPDX-License-Identifier: Apache-2.0

package statestore

import (
	"context"
	"errors"
	"testing"
)

func TestDeploymentKey(t *testing.T) {
	if got := DeploymentKey("site-1"); got != "deployment:site-1" {
		t.Fatalf("expected deployment:site-1, got %s", got)
	}
	if got := SiteIDFromKey("deployment:site-1"); got != "site-1" {
		t.Fatalf("expected site-1, got %s", got)
	}
	if got := SiteIDFromKey("other:site-1"); got != "other:site-1" {
		t.Fatalf("expected unprefixed key returned as-is, got %s", got)
	}
}

func TestNoopStore(t *testing.T) {
	ctx := context.Background()
	s := Noop{}

	if err := s.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected writes to be discarded, got %v", err)
	}

	ok, err := s.SetNX(ctx, "k", []byte("v"), 0)
	if err != nil || !ok {
		t.Fatalf("expected SetNX to report success, ok=%v err=%v", ok, err)
	}
	if err := s.CompareAndSwap(ctx, "k", []byte("a"), []byte("b"), 0); err != nil {
		t.Fatalf("cas: %v", err)
	}

	if n, err := s.Delete(ctx, "k"); err != nil || n != 0 {
		t.Fatalf("delete: n=%d err=%v", n, err)
	}
	if exists, _ := s.Exists(ctx, "k"); exists {
		t.Fatal("expected nothing to exist")
	}
	if keys, _ := s.Keys(ctx, ""); len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}
}
