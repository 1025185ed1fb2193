package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-pos-offline/internal/cache"
)

// Interceptor is the cache-worker contract the handlers require.
// *cache.Worker satisfies it. HandleGet serves intercepted proxy traffic;
// Post exchanges control messages with the worker goroutine.
type Interceptor interface {
	HandleGet(ctx context.Context, rawPath string) cache.Response
	Post(ctx context.Context, typ cache.MsgType) (cache.Reply, error)
}

// CacheHandler serves the /api/v1/cache control surface and the
// intercepting proxy routes.
type CacheHandler struct {
	Worker Interceptor
}

// NewCacheHandler wires a CacheHandler.
func NewCacheHandler(w Interceptor) *CacheHandler {
	return &CacheHandler{Worker: w}
}

// Status handles GET /api/v1/cache/status via the GET_CACHE_STATUS control
// message. Reply: {"api": n, "static": n, "main": n, "total": n}.
func (h *CacheHandler) Status(c *gin.Context) {
	reply, err := h.Worker.Post(c.Request.Context(), cache.MsgGetCacheStatus)
	if err != nil || reply.Err != nil || reply.Status == nil {
		Fail(c, http.StatusServiceUnavailable, ErrCodeCacheUnavailable, "cache worker unavailable")
		return
	}
	ok(c, http.StatusOK, reply.Status)
}

// Clear handles POST /api/v1/cache/clear via CLEAR_CACHE.
func (h *CacheHandler) Clear(c *gin.Context) {
	reply, err := h.Worker.Post(c.Request.Context(), cache.MsgClearCache)
	if err != nil || reply.Err != nil || !reply.Success {
		Fail(c, http.StatusServiceUnavailable, ErrCodeCacheUnavailable, "cache clear failed")
		return
	}
	ok(c, http.StatusOK, gin.H{"success": true})
}

// Prefetch handles POST /api/v1/cache/prefetch via PREFETCH_DATA.
//
// The warm-up runs in the background; 202 acknowledges the request was
// accepted, not that the endpoints are cached.
func (h *CacheHandler) Prefetch(c *gin.Context) {
	reply, err := h.Worker.Post(c.Request.Context(), cache.MsgPrefetchData)
	if err != nil || reply.Err != nil {
		Fail(c, http.StatusServiceUnavailable, ErrCodeCacheUnavailable, "cache worker unavailable")
		return
	}
	ok(c, http.StatusAccepted, gin.H{"success": true})
}

// SkipWaiting handles POST /api/v1/cache/skip-waiting via SKIP_WAITING.
// Kept for protocol compatibility with the UI; the daemon has no staged
// version to activate, so this is an acknowledged no-op.
func (h *CacheHandler) SkipWaiting(c *gin.Context) {
	reply, err := h.Worker.Post(c.Request.Context(), cache.MsgSkipWaiting)
	if err != nil || reply.Err != nil {
		Fail(c, http.StatusServiceUnavailable, ErrCodeCacheUnavailable, "cache worker unavailable")
		return
	}
	ok(c, http.StatusOK, gin.H{"success": true})
}

// Proxy handles the intercepted GET routes (/api/v1/products*,
// /api/v1/employees*, /static/*). The response is whatever the cache layer
// produced — fresh cache, network, stale fallback, or the offline envelope —
// annotated with headers so the UI can tell the difference:
//
//	X-Served-From: cache | network
//	X-Offline-Fallback: true   (only on offline-degraded responses)
func (h *CacheHandler) Proxy(c *gin.Context) {
	resp := h.Worker.HandleGet(c.Request.Context(), c.Request.URL.Path)

	if resp.FromCache {
		c.Header("X-Served-From", "cache")
	} else {
		c.Header("X-Served-From", "network")
	}
	if resp.Offline {
		c.Header("X-Offline-Fallback", "true")
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(resp.Status, contentType, resp.Body)
}
