// SPDX-License-Identifier: Apache-2.0

package mist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "test-key", WithLogger(testLogger()))
}

func TestGetSendsAuthHeader(t *testing.T) {
	var gotAuth, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]any{"email": "noc@example.com"})
	})

	out, err := c.GetSelf(context.Background())
	if err != nil {
		t.Fatalf("GetSelf: %v", err)
	}
	if gotAuth != "Token test-key" {
		t.Fatalf("expected Token auth header, got %q", gotAuth)
	}
	if gotPath != "/api/v1/self" {
		t.Fatalf("expected /api/v1/self, got %s", gotPath)
	}
	if out["email"] != "noc@example.com" {
		t.Fatalf("unexpected response: %v", out)
	}
}

func TestCreateSite(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "ms-123", "name": "Lab-1"})
	})

	out, err := c.CreateSite(context.Background(), "org-1", map[string]any{"name": "Lab-1"})
	if err != nil {
		t.Fatalf("CreateSite: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/v1/orgs/org-1/sites" {
		t.Fatalf("unexpected request: %s %s", gotMethod, gotPath)
	}
	if gotBody["name"] != "Lab-1" {
		t.Fatalf("unexpected body: %v", gotBody)
	}
	if out["id"] != "ms-123" {
		t.Fatalf("unexpected response: %v", out)
	}
}

func TestAssignDevices(t *testing.T) {
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": []any{"FX123"}})
	})

	_, err := c.AssignDevices(context.Background(), "org-1", "ms-123", []string{"FX123"}, true)
	if err != nil {
		t.Fatalf("AssignDevices: %v", err)
	}
	if gotBody["op"] != "assign" || gotBody["site_id"] != "ms-123" {
		t.Fatalf("unexpected body: %v", gotBody)
	}
	if gotBody["managed"] != true {
		t.Fatalf("expected managed=true, got %v", gotBody["managed"])
	}
}

func TestAPIErrorPassthrough(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail": "site not found"}`))
	})

	_, err := c.Get(context.Background(), "/api/v1/sites/nope", nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", apiErr.StatusCode)
	}
	if apiErr.Body != `{"detail": "site not found"}` {
		t.Fatalf("expected body passthrough, got %q", apiErr.Body)
	}
}

func TestTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	WithTimeout(20 * time.Millisecond)(c)

	if _, err := c.Get(context.Background(), "/api/v1/self", nil); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestUnreachable(t *testing.T) {
	// A server that is shut down before the request is made.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := New(addr, "test-key", WithLogger(testLogger()))
	if _, err := c.Get(context.Background(), "/api/v1/self", nil); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestArrayResponsesAreWrapped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"serial": "FX123"}, {"serial": "FX456"}]`))
	})

	out, err := c.Get(context.Background(), "/api/v1/orgs/org-1/inventory", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	list, ok := out["results"].([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("expected wrapped array of 2, got %v", out)
	}
}

func TestEmptyResponseBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	out, err := c.Delete(context.Background(), "/api/v1/sites/ms-123")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty document, got %v", out)
	}
}

func TestNewPrependsScheme(t *testing.T) {
	c := New("api.mist.com", "k")
	if c.baseURL != "https://api.mist.com" {
		t.Fatalf("expected https scheme prepended, got %s", c.baseURL)
	}

	c = New("http://localhost:8000/", "k")
	if c.baseURL != "http://localhost:8000" {
		t.Fatalf("expected explicit scheme kept and slash trimmed, got %s", c.baseURL)
	}
}
