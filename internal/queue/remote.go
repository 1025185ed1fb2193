// Package queue — HTTP replay executor.
//
// This file implements the RemoteExecutor that replays queued mutations
// against the retail backend over plain HTTP. Each operation type maps to
// one backend endpoint; the payload captured at enqueue time is sent
// verbatim so a replayed mutation matches what the UI originally did.
package queue

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-pos-offline/internal/domain"
)

// HTTPExecutor replays queue items against the backend REST API.
type HTTPExecutor struct {
	// BaseURL is the backend root, without trailing slash.
	BaseURL string
	// Client is the HTTP client used for replays; its Timeout bounds each
	// attempt. A nil client falls back to a 10s-timeout default.
	Client *http.Client
	// Log is the component logger.
	Log zerolog.Logger
}

// NewHTTPExecutor constructs an HTTPExecutor for the given backend.
func NewHTTPExecutor(baseURL string, client *http.Client, log zerolog.Logger) *HTTPExecutor {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPExecutor{
		BaseURL: baseURL,
		Client:  client,
		Log:     log.With().Str("component", "queue_executor").Logger(),
	}
}

// endpoint maps an operation type to its backend method and path.
func (e *HTTPExecutor) endpoint(opType string) (method, path string, ok bool) {
	switch opType {
	case domain.OpCartAdd:
		return http.MethodPost, "/api/v1/cart/items", true
	case domain.OpCartUpdate:
		return http.MethodPut, "/api/v1/cart/items", true
	case domain.OpCartRemove:
		return http.MethodDelete, "/api/v1/cart/items", true
	case domain.OpCheckout:
		return http.MethodPost, "/api/v1/checkout", true
	}
	return "", "", false
}

// Execute replays one item. Any transport error or non-2xx status is an
// error; the queue decides whether to retry or drop.
func (e *HTTPExecutor) Execute(ctx context.Context, item domain.QueueItem) error {
	method, path, ok := e.endpoint(item.Type)
	if !ok {
		return fmt.Errorf("no endpoint for operation type %q", item.Type)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.BaseURL+path, bytes.NewReader(item.Payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	// The queue item id doubles as an idempotency key so the backend can
	// dedupe an item that succeeded but whose response was lost.
	req.Header.Set("Idempotency-Key", item.ID)

	resp, err := e.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend replied %d for %s %s", resp.StatusCode, method, path)
	}
	return nil
}
