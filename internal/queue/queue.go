// Package queue implements the Offline Mutation Queue: mutations performed
// while the device is disconnected are persisted as a FIFO list and
// replayed against the backend once connectivity returns.
//
// Replay rules:
//   - Drain iterates strictly in enqueue order, preserving causality (an
//     add replays before a later update to the same entity).
//   - A successful replay removes the item; a failure increments its retry
//     count. At MaxRetries the item is removed anyway and logged at warn
//     level — dropped, not retried further. There is no dead-letter store.
//   - A single in-flight flag makes concurrent drains impossible; a second
//     Drain call observes ErrDrainInFlight and does nothing.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-pos-offline/internal/domain"
)

// ErrDrainInFlight is returned when Drain is called while another drain is
// still running. The caller should simply try again later.
var ErrDrainInFlight = errors.New("drain already in flight")

// RemoteExecutor replays one queued mutation against the backend.
// Implementations must treat any non-success outcome as an error; the queue
// owns the retry bookkeeping.
type RemoteExecutor interface {
	Execute(ctx context.Context, item domain.QueueItem) error
}

// RecordRepo is the subset of the key-value repository the queue needs.
type RecordRepo interface {
	Get(ctx context.Context, db *gorm.DB, key string) (string, error)
	Put(ctx context.Context, db *gorm.DB, key, value string) error
}

// Result summarizes one drain pass.
type Result struct {
	// Processed counts items replayed successfully and removed.
	Processed int `json:"processed"`
	// Remaining counts items still queued after the pass.
	Remaining int `json:"remaining"`
	// Dropped lists ids of items removed after exhausting their retries.
	Dropped []string `json:"dropped,omitempty"`
}

// OfflineQueue persists pending mutations and replays them on demand.
type OfflineQueue struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the record repository holding the queue document.
	Repo RecordRepo
	// Exec performs the remote operations during a drain.
	Exec RemoteExecutor

	// MaxRetries bounds failed replays before an item is dropped.
	MaxRetries int

	// Now returns the current time; overridable in tests.
	Now func() time.Time
	// Log is the component logger.
	Log zerolog.Logger

	draining atomic.Bool
}

// NewOfflineQueue constructs an OfflineQueue bound to the given executor.
func NewOfflineQueue(db *gorm.DB, r RecordRepo, exec RemoteExecutor, maxRetries int, log zerolog.Logger) *OfflineQueue {
	return &OfflineQueue{
		DB:         db,
		Repo:       r,
		Exec:       exec,
		MaxRetries: maxRetries,
		Now:        func() time.Time { return time.Now().UTC() },
		Log:        log.With().Str("component", "offline_queue").Logger(),
	}
}

// Enqueue appends a mutation to the persisted FIFO list with a fresh id and
// a zero retry count, returning the new item's id. It fails on unknown
// operation types or when the persistence medium is unavailable.
func (q *OfflineQueue) Enqueue(ctx context.Context, opType string, payload json.RawMessage) (string, error) {
	if !domain.ValidOp(opType) {
		return "", errors.New("unknown queue operation type: " + opType)
	}
	id := uuid.NewString()
	item := domain.QueueItem{
		ID:         id,
		Type:       opType,
		Payload:    payload,
		EnqueuedAt: q.Now(),
		RetryCount: 0,
	}

	err := q.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items, err := q.read(ctx, tx)
		if err != nil {
			return err
		}
		return q.write(ctx, tx, append(items, item))
	})
	if err != nil {
		q.Log.Warn().Err(err).Str("type", opType).Msg("enqueue failed; mutation not captured")
		return "", err
	}
	q.Log.Debug().Str("id", id).Str("type", opType).Msg("mutation queued")
	return id, nil
}

// Drain replays pending items strictly in enqueue order. Guarded by an
// in-flight flag; a concurrent call returns ErrDrainInFlight. Items that
// fail keep their place (and their incremented retry count) for the next
// pass; items that exhaust MaxRetries are dropped with a warning.
//
// Replays can take a while, and mutations may be enqueued concurrently
// (the cart handlers fall back to Enqueue exactly when replays are
// failing). The final persist therefore merges by item id against a fresh
// read of the queue instead of rewriting the drain's snapshot: only ids
// this pass processed or dropped are removed, and anything enqueued
// mid-drain survives untouched for the next pass.
func (q *OfflineQueue) Drain(ctx context.Context) (Result, error) {
	if !q.draining.CompareAndSwap(false, true) {
		return Result{}, ErrDrainInFlight
	}
	defer q.draining.Store(false)

	items, err := q.read(ctx, q.DB)
	if err != nil {
		q.Log.Warn().Err(err).Msg("drain aborted; queue unreadable")
		return Result{}, err
	}
	if len(items) == 0 {
		return Result{}, nil
	}

	var res Result
	removed := make(map[string]struct{})
	retried := make(map[string]int)
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			// Cancelled: leave the rest of the snapshot untouched.
			continue
		}
		err := q.Exec.Execute(ctx, item)
		if err == nil {
			res.Processed++
			removed[item.ID] = struct{}{}
			continue
		}
		item.RetryCount++
		if item.RetryCount >= q.MaxRetries {
			// Known gap: the item is dropped silently from the user's
			// point of view; only this log records it.
			q.Log.Warn().
				Str("id", item.ID).
				Str("type", item.Type).
				Int("retries", item.RetryCount).
				Err(err).
				Msg("queue item exhausted retries; dropping")
			res.Dropped = append(res.Dropped, item.ID)
			removed[item.ID] = struct{}{}
			continue
		}
		q.Log.Info().
			Str("id", item.ID).
			Str("type", item.Type).
			Int("retries", item.RetryCount).
			Err(err).
			Msg("replay failed; keeping for next drain")
		retried[item.ID] = item.RetryCount
	}

	err = q.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := q.read(ctx, tx)
		if err != nil {
			return err
		}
		keep := make([]domain.QueueItem, 0, len(current))
		for _, it := range current {
			if _, gone := removed[it.ID]; gone {
				continue
			}
			if n, ok := retried[it.ID]; ok {
				it.RetryCount = n
			}
			keep = append(keep, it)
		}
		res.Remaining = len(keep)
		return q.write(ctx, tx, keep)
	})
	if err != nil {
		q.Log.Error().Err(err).Msg("failed to persist queue after drain")
		return res, err
	}
	q.Log.Info().
		Int("processed", res.Processed).
		Int("remaining", res.Remaining).
		Int("dropped", len(res.Dropped)).
		Msg("queue drained")
	return res, nil
}

// Depth returns the number of pending items, or 0 on storage failure.
func (q *OfflineQueue) Depth(ctx context.Context) int {
	items, err := q.read(ctx, q.DB)
	if err != nil {
		return 0
	}
	return len(items)
}

// Items returns a copy of the pending items in enqueue order.
func (q *OfflineQueue) Items(ctx context.Context) []domain.QueueItem {
	items, err := q.read(ctx, q.DB)
	if err != nil {
		return nil
	}
	return items
}

func (q *OfflineQueue) read(ctx context.Context, db *gorm.DB) ([]domain.QueueItem, error) {
	raw, err := q.Repo.Get(ctx, db, domain.KeyOfflineQueue)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var items []domain.QueueItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		q.Log.Warn().Err(err).Msg("queue record is corrupted; starting empty")
		return nil, nil
	}
	return items, nil
}

func (q *OfflineQueue) write(ctx context.Context, db *gorm.DB, items []domain.QueueItem) error {
	if items == nil {
		items = []domain.QueueItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return q.Repo.Put(ctx, db, domain.KeyOfflineQueue, string(b))
}
