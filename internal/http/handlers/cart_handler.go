package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-pos-offline/internal/domain"
	"github.com/tbourn/go-pos-offline/internal/http/middleware"
	"github.com/tbourn/go-pos-offline/internal/queue"
	"github.com/tbourn/go-pos-offline/internal/store"
	"github.com/tbourn/go-pos-offline/internal/utils"
)

// maxImportBytes caps the accepted snapshot document size.
const maxImportBytes = 4 << 20 // 4 MiB

// CartService is the cart session contract the handlers require.
// *store.CartStore satisfies it.
type CartService interface {
	Load(ctx context.Context) *domain.CartState
	AddItem(ctx context.Context, product domain.ProductSnapshot, quantity int, notes *string) bool
	RemoveItem(ctx context.Context, id string) bool
	SetQuantity(ctx context.Context, id string, quantity int) bool
	SetNotes(ctx context.Context, id, notes string) bool
	Clear(ctx context.Context) bool
	History(ctx context.Context) []domain.HistoryEntry
	Metadata(ctx context.Context) *domain.CartMetadata
	ExportSnapshot(ctx context.Context) (string, bool)
	ImportSnapshot(ctx context.Context, payload string) bool
}

// MutationQueue is the replay-capture contract. *queue.OfflineQueue
// satisfies it.
type MutationQueue interface {
	Enqueue(ctx context.Context, opType string, payload json.RawMessage) (string, error)
}

// Connectivity reports the last observed connectivity state.
// *connectivity.Monitor satisfies it.
type Connectivity interface {
	Online() bool
}

// CartHandler serves the /api/v1/cart surface.
//
// Every mutation is applied to the local store first (the device must stay
// usable regardless of the network), then propagated: replayed immediately
// through Exec when online, captured in the queue otherwise. A failed
// immediate replay falls back to the queue rather than surfacing an error —
// from the register's point of view the mutation succeeded the moment it
// landed in local storage.
type CartHandler struct {
	Store CartService
	Queue MutationQueue
	Net   Connectivity
	// Exec replays mutations against the backend when online. Optional;
	// when nil every mutation is queued.
	Exec queue.RemoteExecutor
}

// NewCartHandler wires a CartHandler.
func NewCartHandler(s CartService, q MutationQueue, net Connectivity, exec queue.RemoteExecutor) *CartHandler {
	return &CartHandler{Store: s, Queue: q, Net: net, Exec: exec}
}

// cartResponse is the common success payload for cart reads and mutations.
type cartResponse struct {
	Cart         *domain.CartState `json:"cart"`
	DisplayTotal string            `json:"display_total"`
	Offline      bool              `json:"offline"`
}

func (h *CartHandler) cartPayload(ctx context.Context) cartResponse {
	st := h.Store.Load(ctx)
	return cartResponse{
		Cart:         st,
		DisplayTotal: store.DisplayTotal(st),
		Offline:      h.Net != nil && !h.Net.Online(),
	}
}

// GetCart handles GET /api/v1/cart.
//
// Returns the current session (null when none exists or it expired), a
// locale-formatted display total, and the current offline flag.
func (h *CartHandler) GetCart(c *gin.Context) {
	ok(c, http.StatusOK, h.cartPayload(c.Request.Context()))
}

// addItemRequest is the POST /items body.
type addItemRequest struct {
	Product  domain.ProductSnapshot `json:"product"`
	Quantity int                    `json:"quantity"`
	Notes    *string                `json:"notes"`
}

// AddItem handles POST /api/v1/cart/items.
//
// Adds quantity of the given product; adding an existing product sums into
// the existing line. Responds 201 with the updated cart.
func (h *CartHandler) AddItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	if req.Product.ID == "" || req.Quantity <= 0 {
		Fail(c, http.StatusBadRequest, ErrCodeBadRequest, "product.id and a positive quantity are required")
		return
	}

	ctx := c.Request.Context()
	if !h.Store.AddItem(ctx, req.Product, req.Quantity, req.Notes) {
		Fail(c, http.StatusServiceUnavailable, ErrCodeStorageUnavailable, "local storage unavailable")
		return
	}
	h.propagate(c, domain.OpCartAdd, mustJSON(req))
	ok(c, http.StatusCreated, h.cartPayload(ctx))
}

// updateItemRequest is the PUT /items/:id body. At least one field must be
// present; quantity <= 0 removes the line.
type updateItemRequest struct {
	Quantity *int    `json:"quantity"`
	Notes    *string `json:"notes"`
}

// UpdateItem handles PUT /api/v1/cart/items/:id.
func (h *CartHandler) UpdateItem(c *gin.Context) {
	id := c.Param("id")
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	if req.Quantity == nil && req.Notes == nil {
		Fail(c, http.StatusBadRequest, ErrCodeBadRequest, "quantity or notes is required")
		return
	}

	ctx := c.Request.Context()
	st := h.Store.Load(ctx)
	if st == nil || st.Find(id) == nil {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "item not in cart")
		return
	}

	if req.Quantity != nil {
		if !h.Store.SetQuantity(ctx, id, *req.Quantity) {
			Fail(c, http.StatusServiceUnavailable, ErrCodeStorageUnavailable, "local storage unavailable")
			return
		}
	}
	if req.Notes != nil {
		// A quantity <= 0 removed the line; notes on a gone line are a no-op.
		if cur := h.Store.Load(ctx); cur != nil && cur.Find(id) != nil {
			if !h.Store.SetNotes(ctx, id, *req.Notes) {
				Fail(c, http.StatusServiceUnavailable, ErrCodeStorageUnavailable, "local storage unavailable")
				return
			}
		}
	}

	h.propagate(c, domain.OpCartUpdate, mustJSON(gin.H{
		"id":       id,
		"quantity": req.Quantity,
		"notes":    req.Notes,
	}))
	ok(c, http.StatusOK, h.cartPayload(ctx))
}

// RemoveItem handles DELETE /api/v1/cart/items/:id.
func (h *CartHandler) RemoveItem(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	st := h.Store.Load(ctx)
	if st == nil || st.Find(id) == nil {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "item not in cart")
		return
	}
	if !h.Store.RemoveItem(ctx, id) {
		Fail(c, http.StatusServiceUnavailable, ErrCodeStorageUnavailable, "local storage unavailable")
		return
	}
	h.propagate(c, domain.OpCartRemove, mustJSON(gin.H{"id": id}))
	ok(c, http.StatusOK, h.cartPayload(ctx))
}

// ClearCart handles DELETE /api/v1/cart.
//
// Drops the session but keeps the recovery history; a purely local
// operation, never propagated to the backend.
func (h *CartHandler) ClearCart(c *gin.Context) {
	if !h.Store.Clear(c.Request.Context()) {
		Fail(c, http.StatusServiceUnavailable, ErrCodeStorageUnavailable, "local storage unavailable")
		return
	}
	noContent(c)
}

// History handles GET /api/v1/cart/history?page=&limit=.
//
// Returns the recovery ring, oldest first, with simple page/limit slicing
// (the ring is small, so slicing in memory is fine).
func (h *CartHandler) History(c *gin.Context) {
	page := utils.AtoiDefault(c.Query("page"), 1)
	limit := utils.AtoiDefault(c.Query("limit"), 20)
	if page < 1 || limit < 1 || limit > 100 {
		Fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid pagination parameters")
		return
	}

	hist := h.Store.History(c.Request.Context())
	total := len(hist)
	start := utils.ClampInt((page-1)*limit, 0, total)
	end := utils.ClampInt(start+limit, start, total)

	ok(c, http.StatusOK, gin.H{
		"history": hist[start:end],
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

// Metadata handles GET /api/v1/cart/metadata.
func (h *CartHandler) Metadata(c *gin.Context) {
	meta := h.Store.Metadata(c.Request.Context())
	if meta == nil {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "no active session")
		return
	}
	ok(c, http.StatusOK, meta)
}

// Export handles GET /api/v1/cart/export, returning the full interchange
// document (current state, metadata, history) as raw JSON.
func (h *CartHandler) Export(c *gin.Context) {
	payload, exported := h.Store.ExportSnapshot(c.Request.Context())
	if !exported {
		Fail(c, http.StatusServiceUnavailable, ErrCodeStorageUnavailable, "local storage unavailable")
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(payload))
}

// Import handles POST /api/v1/cart/import.
//
// The body is the interchange document produced by Export. Rejected
// documents leave the session untouched.
func (h *CartHandler) Import(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
	if err != nil {
		Fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable request body")
		return
	}
	ctx := c.Request.Context()
	if !h.Store.ImportSnapshot(ctx, string(body)) {
		Fail(c, http.StatusBadRequest, ErrCodeSnapshotRejected, "snapshot rejected")
		return
	}
	ok(c, http.StatusOK, h.cartPayload(ctx))
}

// propagate forwards a mutation to the backend: immediately through Exec
// when online, otherwise (or on immediate failure) via the offline queue.
// Propagation never fails the request — the local write already succeeded.
func (h *CartHandler) propagate(c *gin.Context, opType string, payload json.RawMessage) {
	ctx := c.Request.Context()
	log := middleware.LoggerFrom(c)

	if h.Exec != nil && h.Net != nil && h.Net.Online() {
		item := domain.QueueItem{
			ID:         uuid.NewString(),
			Type:       opType,
			Payload:    payload,
			EnqueuedAt: time.Now().UTC(),
		}
		err := h.Exec.Execute(ctx, item)
		if err == nil {
			return
		}
		log.Info().Err(err).Str("type", opType).Msg("immediate replay failed; capturing in queue")
	}

	if h.Queue == nil {
		return
	}
	if _, err := h.Queue.Enqueue(ctx, opType, payload); err != nil {
		log.Warn().Err(err).Str("type", opType).Msg("mutation not captured for replay")
	}
}

// mustJSON marshals v, which is always a marshalable request shape here.
func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}
