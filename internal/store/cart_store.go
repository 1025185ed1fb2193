// Package store implements the Local State Store: it owns the durable cart
// session (current state + metadata + bounded recovery history) persisted as
// JSON documents in namespaced key-value records.
//
// Contract highlights:
//   - Load returns nil when no session exists or when the stored session is
//     older than the retention window (in which case the record is purged as
//     a side effect of the read).
//   - Every mutating call is a single read-modify-write executed inside one
//     DB transaction, so no partial state is observable to later reads.
//   - History is a FIFO ring bounded by HistoryLimit; rapid successive saves
//     inside the debounce window coalesce into the newest entry instead of
//     flooding the ring.
//   - When the persistence medium is unavailable the store degrades to
//     no-ops (nil/false results), logged once per session.
//
// Concurrency: a process-local mutex serializes read-modify-write cycles
// between handlers. Across processes the policy remains last-write-wins;
// concurrent sessions are not coordinated.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-pos-offline/internal/domain"
)

// SnapshotVersion tags export documents and session metadata so future
// schema changes can migrate old payloads.
const SnapshotVersion = "1"

// RecordRepo defines the key-value persistence contract required by the
// store. Implementations persist one JSON document per namespaced key.
type RecordRepo interface {
	// Get reads the document stored under key, or repo.ErrNotFound.
	Get(ctx context.Context, db *gorm.DB, key string) (string, error)
	// Put upserts the document under key (last write wins).
	Put(ctx context.Context, db *gorm.DB, key, value string) error
	// Delete removes the record; missing keys are not an error.
	Delete(ctx context.Context, db *gorm.DB, key string) error
}

// CartStore provides cart session operations over the key-value records.
type CartStore struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the record repository used by this service.
	Repo RecordRepo

	// Retention is the session retention window; older states are purged.
	Retention time.Duration
	// HistoryLimit caps the recovery ring (FIFO eviction beyond it).
	HistoryLimit int
	// Debounce coalesces history snapshots taken in rapid succession.
	Debounce time.Duration

	// Location is stamped into new sessions (store/warehouse id).
	Location string
	// DeviceInfo is recorded in session metadata at creation time.
	DeviceInfo string

	// Now returns the current time; overridable in tests.
	Now func() time.Time
	// Log is the component logger.
	Log zerolog.Logger

	mu          sync.Mutex
	storageOnce sync.Once
}

// NewCartStore constructs a CartStore with the given bounds.
func NewCartStore(db *gorm.DB, r RecordRepo, retention time.Duration, historyLimit int, debounce time.Duration, log zerolog.Logger) *CartStore {
	return &CartStore{
		DB:           db,
		Repo:         r,
		Retention:    retention,
		HistoryLimit: historyLimit,
		Debounce:     debounce,
		Now:          func() time.Time { return time.Now().UTC() },
		Log:          log.With().Str("component", "cart_store").Logger(),
	}
}

// Load returns the current cart session, or nil when none exists or the
// stored session exceeded the retention window (the expired record is
// purged on that read). Metadata's LastAccessedAt is refreshed on success.
func (s *CartStore) Load(ctx context.Context) *domain.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadState(ctx, s.DB)
	if err != nil || st == nil {
		return nil
	}
	s.touchMetadata(ctx)
	return st
}

// AddItem adds quantity of product to the cart, creating a new line or
// summing into an existing one. Notes are overwritten only when explicitly
// provided (non-nil). Returns false on invalid input or storage failure.
func (s *CartStore) AddItem(ctx context.Context, product domain.ProductSnapshot, quantity int, notes *string) bool {
	if product.ID == "" || quantity <= 0 {
		return false
	}
	return s.mutate(ctx, func(st *domain.CartState, now time.Time) bool {
		if it := st.Find(product.ID); it != nil {
			it.Quantity += quantity
			if notes != nil {
				it.Notes = *notes
			}
			return true
		}
		item := domain.CartItem{
			ID:       product.ID,
			Product:  product,
			Quantity: quantity,
			AddedAt:  now,
		}
		if notes != nil {
			item.Notes = *notes
		}
		st.Items = append(st.Items, item)
		return true
	})
}

// RemoveItem deletes the cart line with the given product id.
// Returns false when the line does not exist.
func (s *CartStore) RemoveItem(ctx context.Context, id string) bool {
	return s.mutate(ctx, func(st *domain.CartState, _ time.Time) bool {
		return removeLine(st, id)
	})
}

// SetQuantity replaces the quantity of an existing line. A quantity <= 0 is
// equivalent to RemoveItem. Returns false when the line does not exist.
func (s *CartStore) SetQuantity(ctx context.Context, id string, quantity int) bool {
	return s.mutate(ctx, func(st *domain.CartState, _ time.Time) bool {
		if quantity <= 0 {
			return removeLine(st, id)
		}
		it := st.Find(id)
		if it == nil {
			return false
		}
		it.Quantity = quantity
		return true
	})
}

// SetNotes replaces the note on an existing line.
func (s *CartStore) SetNotes(ctx context.Context, id, notes string) bool {
	return s.mutate(ctx, func(st *domain.CartState, _ time.Time) bool {
		it := st.Find(id)
		if it == nil {
			return false
		}
		it.Notes = notes
		return true
	})
}

// Clear drops the current session (state and metadata) but keeps the
// recovery history, so an accidental clear remains recoverable.
func (s *CartStore) Clear(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.Repo.Delete(ctx, tx, domain.KeyCartState); err != nil {
			return err
		}
		return s.Repo.Delete(ctx, tx, domain.KeyCartMetadata)
	})
	if err != nil {
		s.storageErr("clear", err)
		return false
	}
	return true
}

// History returns the recovery ring, oldest entry first. Nil on storage
// failure or when no snapshot was ever taken.
func (s *CartStore) History(ctx context.Context) []domain.HistoryEntry {
	raw, err := s.Repo.Get(ctx, s.DB, domain.KeyCartHistory)
	if err != nil {
		if !isNotFound(err) {
			s.storageErr("history", err)
		}
		return nil
	}
	var hist []domain.HistoryEntry
	if err := json.Unmarshal([]byte(raw), &hist); err != nil {
		s.Log.Warn().Err(err).Msg("history record is corrupted; ignoring")
		return nil
	}
	return hist
}

// Metadata returns the session metadata, or nil when no session exists.
func (s *CartStore) Metadata(ctx context.Context) *domain.CartMetadata {
	raw, err := s.Repo.Get(ctx, s.DB, domain.KeyCartMetadata)
	if err != nil {
		if !isNotFound(err) {
			s.storageErr("metadata", err)
		}
		return nil
	}
	var meta domain.CartMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil
	}
	return &meta
}

// ExportSnapshot serializes the full session (current state, metadata,
// history) into the interchange document. ok is false on storage failure.
func (s *CartStore) ExportSnapshot(ctx context.Context) (payload string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadState(ctx, s.DB)
	if err != nil {
		return "", false
	}
	doc := domain.SnapshotDocument{
		Current:    st,
		Metadata:   s.Metadata(ctx),
		History:    s.History(ctx),
		ExportedAt: s.Now(),
		Version:    SnapshotVersion,
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// ImportSnapshot replaces the session with the given export document.
// The payload is rejected wholesale (false, zero side effects) unless it is
// a JSON object carrying a recognizable "current" field. A document whose
// current is explicitly null clears the session, mirroring an empty export.
func (s *CartStore) ImportSnapshot(ctx context.Context, payload string) bool {
	doc, err := parseSnapshot(payload)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if doc.Current == nil {
			if err := s.Repo.Delete(ctx, tx, domain.KeyCartState); err != nil {
				return err
			}
		} else {
			doc.Current.Recalculate()
			if doc.Current.LastUpdated.IsZero() {
				doc.Current.LastUpdated = now
			}
			if err := s.putJSON(ctx, tx, domain.KeyCartState, doc.Current); err != nil {
				return err
			}
		}

		meta := doc.Metadata
		if meta == nil {
			meta = &domain.CartMetadata{
				Version:    SnapshotVersion,
				CreatedAt:  now,
				DeviceInfo: s.DeviceInfo,
			}
		}
		meta.LastAccessedAt = now
		if err := s.putJSON(ctx, tx, domain.KeyCartMetadata, meta); err != nil {
			return err
		}

		hist := doc.History
		if len(hist) > s.HistoryLimit {
			hist = hist[len(hist)-s.HistoryLimit:]
		}
		return s.putJSON(ctx, tx, domain.KeyCartHistory, hist)
	})
	if err != nil {
		s.storageErr("import", err)
		return false
	}
	return true
}

// parseSnapshot validates the interchange shape. The "current" key must be
// present; when non-null it must decode as a cart state object.
func parseSnapshot(payload string) (*domain.SnapshotDocument, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &probe); err != nil {
		return nil, ErrMalformedSnapshot
	}
	if _, present := probe["current"]; !present {
		return nil, ErrMalformedSnapshot
	}
	var doc domain.SnapshotDocument
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, ErrMalformedSnapshot
	}
	return &doc, nil
}

// mutate runs one read-modify-write cycle: load (or create) the session,
// apply fn, recompute totals, persist state + history + metadata in a single
// transaction. fn returns false to abort without writing.
func (s *CartStore) mutate(ctx context.Context, fn func(st *domain.CartState, now time.Time) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	applied := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := s.loadState(ctx, tx)
		if err != nil {
			return err
		}
		created := false
		if st == nil {
			st = &domain.CartState{
				SessionID: uuid.NewString(),
				Location:  s.Location,
			}
			created = true
		}
		if !fn(st, now) {
			return nil // no-op, e.g. removing a missing line
		}
		st.Recalculate()
		st.LastUpdated = now
		if err := s.putJSON(ctx, tx, domain.KeyCartState, st); err != nil {
			return err
		}
		if err := s.appendHistory(ctx, tx, st, now); err != nil {
			return err
		}
		if err := s.writeMetadata(ctx, tx, now, created); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		s.storageErr("mutate", err)
		return false
	}
	return applied
}

// loadState reads and validates the current state document. Expired states
// are purged and reported as absent. Storage errors are logged (once) and
// propagated; absence is (nil, nil).
func (s *CartStore) loadState(ctx context.Context, db *gorm.DB) (*domain.CartState, error) {
	raw, err := s.Repo.Get(ctx, db, domain.KeyCartState)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		s.storageErr("load", err)
		return nil, err
	}
	var st domain.CartState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		s.Log.Warn().Err(err).Msg("cart state record is corrupted; treating as absent")
		return nil, nil
	}
	if s.Retention > 0 && s.Now().Sub(st.LastUpdated) > s.Retention {
		s.Log.Info().
			Time("last_updated", st.LastUpdated).
			Dur("retention", s.Retention).
			Msg("cart session expired; purging")
		_ = s.Repo.Delete(ctx, db, domain.KeyCartState)
		_ = s.Repo.Delete(ctx, db, domain.KeyCartMetadata)
		return nil, nil
	}
	return &st, nil
}

// appendHistory pushes a snapshot onto the recovery ring. Snapshots taken
// within the debounce window replace the newest entry so bulk updates do
// not wash out the ring; beyond HistoryLimit the oldest entry is evicted.
func (s *CartStore) appendHistory(ctx context.Context, db *gorm.DB, st *domain.CartState, now time.Time) error {
	var hist []domain.HistoryEntry
	if raw, err := s.Repo.Get(ctx, db, domain.KeyCartHistory); err == nil {
		_ = json.Unmarshal([]byte(raw), &hist)
	} else if !isNotFound(err) {
		return err
	}

	entry := domain.HistoryEntry{SavedAt: now, State: *st}
	if n := len(hist); n > 0 && s.Debounce > 0 && now.Sub(hist[n-1].SavedAt) < s.Debounce {
		hist[n-1] = entry
	} else {
		hist = append(hist, entry)
	}
	if len(hist) > s.HistoryLimit {
		hist = hist[len(hist)-s.HistoryLimit:]
	}
	return s.putJSON(ctx, db, domain.KeyCartHistory, hist)
}

// writeMetadata refreshes LastAccessedAt, creating the metadata document
// when a new session begins. CreatedAt is never rewritten afterwards.
func (s *CartStore) writeMetadata(ctx context.Context, db *gorm.DB, now time.Time, created bool) error {
	var meta domain.CartMetadata
	if raw, err := s.Repo.Get(ctx, db, domain.KeyCartMetadata); err == nil {
		_ = json.Unmarshal([]byte(raw), &meta)
	} else if !isNotFound(err) {
		return err
	}
	if created || meta.CreatedAt.IsZero() {
		meta = domain.CartMetadata{
			Version:    SnapshotVersion,
			CreatedAt:  now,
			DeviceInfo: s.DeviceInfo,
		}
	}
	meta.LastAccessedAt = now
	return s.putJSON(ctx, db, domain.KeyCartMetadata, &meta)
}

// touchMetadata refreshes LastAccessedAt outside a mutation (plain loads).
// Failures are tolerated; the loaded state is still returned.
func (s *CartStore) touchMetadata(ctx context.Context) {
	var meta domain.CartMetadata
	if raw, err := s.Repo.Get(ctx, s.DB, domain.KeyCartMetadata); err == nil {
		if json.Unmarshal([]byte(raw), &meta) == nil {
			meta.LastAccessedAt = s.Now()
			_ = s.putJSON(ctx, s.DB, domain.KeyCartMetadata, &meta)
		}
	}
}

func (s *CartStore) putJSON(ctx context.Context, db *gorm.DB, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Repo.Put(ctx, db, key, string(b))
}

// storageErr logs the first storage failure of the session at warn level;
// subsequent failures are logged at debug to avoid flooding.
func (s *CartStore) storageErr(op string, err error) {
	logged := false
	s.storageOnce.Do(func() {
		s.Log.Warn().Err(err).Str("op", op).Msg("storage unavailable; store is degraded to no-ops")
		logged = true
	})
	if !logged {
		s.Log.Debug().Err(err).Str("op", op).Msg("storage still unavailable")
	}
}

func removeLine(st *domain.CartState, id string) bool {
	for i := range st.Items {
		if st.Items[i].ID == id {
			st.Items = append(st.Items[:i], st.Items[i+1:]...)
			return true
		}
	}
	return false
}

func isNotFound(err error) bool { return errors.Is(err, gorm.ErrRecordNotFound) }
