package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-pos-offline/internal/domain"
	"github.com/tbourn/go-pos-offline/internal/queue"
)

// QueueService is the offline-queue contract the handlers require.
// *queue.OfflineQueue satisfies it.
type QueueService interface {
	Drain(ctx context.Context) (queue.Result, error)
	Depth(ctx context.Context) int
	Items(ctx context.Context) []domain.QueueItem
}

// QueueHandler serves the /api/v1/queue surface: pending-mutation
// introspection for the UI plus the manual drain trigger.
type QueueHandler struct {
	Queue QueueService
	Net   Connectivity
}

// NewQueueHandler wires a QueueHandler.
func NewQueueHandler(q QueueService, net Connectivity) *QueueHandler {
	return &QueueHandler{Queue: q, Net: net}
}

// Status handles GET /api/v1/queue.
//
// Returns the number of pending items and the pending items themselves
// (ids, types, retry counts) so the register UI can show what is waiting to
// sync.
func (h *QueueHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	items := h.Queue.Items(ctx)
	if items == nil {
		items = []domain.QueueItem{}
	}
	ok(c, http.StatusOK, gin.H{
		"depth":   len(items),
		"items":   items,
		"offline": h.Net != nil && !h.Net.Online(),
	})
}

// Drain handles POST /api/v1/queue/drain, the manual replay trigger.
//
// A concurrent drain (for example the automatic one fired by the
// connectivity monitor) responds 409; the caller just tries again later.
func (h *QueueHandler) Drain(c *gin.Context) {
	res, err := h.Queue.Drain(c.Request.Context())
	if err != nil {
		if errors.Is(err, queue.ErrDrainInFlight) {
			Fail(c, http.StatusConflict, ErrCodeDrainInFlight, "a drain is already running")
			return
		}
		Fail(c, http.StatusServiceUnavailable, ErrCodeStorageUnavailable, "queue unavailable")
		return
	}
	ok(c, http.StatusOK, res)
}
