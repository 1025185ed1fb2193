package domain

import (
	"encoding/json"
	"time"
)

// Queue operation types. These name the remote mutation a queued item will
// replay once connectivity returns.
const (
	OpCartAdd    = "cart_add"
	OpCartUpdate = "cart_update"
	OpCartRemove = "cart_remove"
	OpCheckout   = "checkout"
)

// ValidOp reports whether t is a known queue operation type.
func ValidOp(t string) bool {
	switch t {
	case OpCartAdd, OpCartUpdate, OpCartRemove, OpCheckout:
		return true
	}
	return false
}

// QueueItem is a mutation captured while the device was offline, waiting to
// be replayed against the backend.
//
// Invariants:
//   - RetryCount is monotonically non-decreasing.
//   - An item leaves the queue when it replays successfully or when
//     RetryCount reaches the configured maximum (dropped, logged).
type QueueItem struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RetryCount int             `json:"retry_count"`
}
