package queue

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-pos-offline/internal/domain"
)

func TestHTTPExecutor_ReplaysWithIdempotencyKey(t *testing.T) {
	var gotMethod, gotPath, gotKey, gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Idempotency-Key")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	defer upstream.Close()

	exec := NewHTTPExecutor(upstream.URL, nil, zerolog.Nop())
	item := domain.QueueItem{
		ID:         "item-1",
		Type:       domain.OpCartAdd,
		Payload:    json.RawMessage(`{"id":"p1","quantity":2}`),
		EnqueuedAt: time.Now().UTC(),
	}
	if err := exec.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/v1/cart/items" {
		t.Fatalf("wrong endpoint: %s %s", gotMethod, gotPath)
	}
	if gotKey != "item-1" {
		t.Fatalf("queue item id must ride as idempotency key, got %q", gotKey)
	}
	if gotBody != `{"id":"p1","quantity":2}` {
		t.Fatalf("payload must be sent verbatim, got %q", gotBody)
	}
}

func TestHTTPExecutor_EndpointMapping(t *testing.T) {
	exec := NewHTTPExecutor("http://backend", nil, zerolog.Nop())
	cases := []struct {
		op     string
		method string
		path   string
	}{
		{domain.OpCartAdd, http.MethodPost, "/api/v1/cart/items"},
		{domain.OpCartUpdate, http.MethodPut, "/api/v1/cart/items"},
		{domain.OpCartRemove, http.MethodDelete, "/api/v1/cart/items"},
		{domain.OpCheckout, http.MethodPost, "/api/v1/checkout"},
	}
	for _, c := range cases {
		method, path, ok := exec.endpoint(c.op)
		if !ok || method != c.method || path != c.path {
			t.Fatalf("%s: got %s %s ok=%v", c.op, method, path, ok)
		}
	}
	if _, _, ok := exec.endpoint("mystery"); ok {
		t.Fatalf("unknown op must have no endpoint")
	}
}

func TestHTTPExecutor_NonSuccessStatusIsError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	exec := NewHTTPExecutor(upstream.URL, nil, zerolog.Nop())
	item := domain.QueueItem{ID: "x", Type: domain.OpCheckout}
	if err := exec.Execute(context.Background(), item); err == nil {
		t.Fatalf("5xx must be reported as an error")
	}
}

func TestHTTPExecutor_TransportFailureIsError(t *testing.T) {
	exec := NewHTTPExecutor("http://127.0.0.1:1", &http.Client{Timeout: 200 * time.Millisecond}, zerolog.Nop())
	item := domain.QueueItem{ID: "x", Type: domain.OpCartAdd}
	if err := exec.Execute(context.Background(), item); err == nil {
		t.Fatalf("transport failure must be reported as an error")
	}
}
