package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-pos-offline/internal/domain"
	"github.com/tbourn/go-pos-offline/internal/repo"
)

func newStoreDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("cart_store_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

// newTestStore builds a CartStore over a fresh DB with a controllable clock.
// Mutating *clock moves the store's notion of "now".
func newTestStore(t *testing.T, debounce time.Duration) (*CartStore, *time.Time) {
	t.Helper()
	db := newStoreDB(t, &domain.KVRecord{})
	s := NewCartStore(db, repo.Records{}, 30*24*time.Hour, 10, debounce, zerolog.Nop())
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return clock }
	return s, &clock
}

func product(id string, price float64) domain.ProductSnapshot {
	return domain.ProductSnapshot{ID: id, SKU: "sku-" + id, Name: "Item " + id, Price: price, Currency: "USD"}
}

func TestAddItem_CreatesSessionWithTotals(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()

	if !s.AddItem(ctx, product("p1", 10.0), 2, nil) {
		t.Fatalf("AddItem failed")
	}

	st := s.Load(ctx)
	if st == nil {
		t.Fatalf("expected a session after AddItem")
	}
	if st.SessionID == "" {
		t.Fatalf("SessionID not assigned")
	}
	if st.TotalItems != 2 || st.TotalValue != 20.0 {
		t.Fatalf("totals mismatch: items=%d value=%v", st.TotalItems, st.TotalValue)
	}
	if len(st.Items) != 1 || st.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items: %+v", st.Items)
	}
}

func TestAddItem_SumsIntoExistingLine(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()

	s.AddItem(ctx, product("p1", 5.0), 2, nil)
	s.AddItem(ctx, product("p1", 5.0), 3, nil)

	st := s.Load(ctx)
	if len(st.Items) != 1 {
		t.Fatalf("expected one merged line, got %d", len(st.Items))
	}
	if st.Items[0].Quantity != 5 || st.TotalItems != 5 || st.TotalValue != 25.0 {
		t.Fatalf("merge mismatch: %+v totals=%d/%v", st.Items[0], st.TotalItems, st.TotalValue)
	}
}

func TestAddItem_NotesOverwrittenOnlyWhenProvided(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()

	note := "gift wrap"
	s.AddItem(ctx, product("p1", 5.0), 1, &note)
	s.AddItem(ctx, product("p1", 5.0), 1, nil) // nil must not clear the note

	st := s.Load(ctx)
	if st.Items[0].Notes != "gift wrap" {
		t.Fatalf("note lost on merge: %q", st.Items[0].Notes)
	}
}

func TestAddItem_RejectsInvalidInput(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()

	if s.AddItem(ctx, domain.ProductSnapshot{}, 1, nil) {
		t.Fatalf("empty product id must be rejected")
	}
	if s.AddItem(ctx, product("p1", 1.0), 0, nil) {
		t.Fatalf("zero quantity must be rejected")
	}
	if st := s.Load(ctx); st != nil {
		t.Fatalf("rejected adds must not create a session")
	}
}

func TestSetQuantity_ZeroRemovesLine(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()

	s.AddItem(ctx, product("p1", 2.0), 3, nil)
	if !s.SetQuantity(ctx, "p1", 0) {
		t.Fatalf("SetQuantity(0) should remove the line")
	}
	st := s.Load(ctx)
	if len(st.Items) != 0 || st.TotalItems != 0 || st.TotalValue != 0 {
		t.Fatalf("line not removed: %+v", st)
	}
}

func TestSetQuantity_MissingLine(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()

	s.AddItem(ctx, product("p1", 2.0), 1, nil)
	if s.SetQuantity(ctx, "nope", 4) {
		t.Fatalf("setting quantity on a missing line must fail")
	}
}

func TestRemoveItem_RecalculatesTotals(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()

	s.AddItem(ctx, product("p1", 10.0), 1, nil)
	s.AddItem(ctx, product("p2", 4.0), 2, nil)
	if !s.RemoveItem(ctx, "p1") {
		t.Fatalf("RemoveItem failed")
	}

	st := s.Load(ctx)
	if len(st.Items) != 1 || st.TotalItems != 2 || st.TotalValue != 8.0 {
		t.Fatalf("totals not recalculated: %+v", st)
	}
}

func TestSetNotes_UpdatesLine(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()

	s.AddItem(ctx, product("p1", 1.0), 1, nil)
	if !s.SetNotes(ctx, "p1", "no bag") {
		t.Fatalf("SetNotes failed")
	}
	if got := s.Load(ctx).Items[0].Notes; got != "no bag" {
		t.Fatalf("note mismatch: %q", got)
	}
	if s.SetNotes(ctx, "missing", "x") {
		t.Fatalf("SetNotes on missing line must fail")
	}
}

func TestLoad_PurgesExpiredSession(t *testing.T) {
	s, clock := newTestStore(t, 0)
	ctx := context.Background()

	s.AddItem(ctx, product("p1", 3.0), 1, nil)

	*clock = clock.Add(31 * 24 * time.Hour)
	if st := s.Load(ctx); st != nil {
		t.Fatalf("expired session must read as absent, got %+v", st)
	}

	// State and metadata are purged; the recovery history survives.
	if _, err := repo.GetRecord(ctx, s.DB, domain.KeyCartState); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("state record should be purged, got %v", err)
	}
	if _, err := repo.GetRecord(ctx, s.DB, domain.KeyCartMetadata); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("metadata record should be purged, got %v", err)
	}
	if hist := s.History(ctx); len(hist) == 0 {
		t.Fatalf("history must survive expiry")
	}
}

func TestLoad_WithinRetentionSurvives(t *testing.T) {
	s, clock := newTestStore(t, 0)
	ctx := context.Background()

	s.AddItem(ctx, product("p1", 3.0), 1, nil)
	*clock = clock.Add(29 * 24 * time.Hour)
	if st := s.Load(ctx); st == nil {
		t.Fatalf("session within retention must survive")
	}
}

func TestHistory_FIFORingCappedAtLimit(t *testing.T) {
	s, clock := newTestStore(t, 0)
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		*clock = clock.Add(time.Minute)
		if !s.AddItem(ctx, product(fmt.Sprintf("p%02d", i), 1.0), 1, nil) {
			t.Fatalf("add %d failed", i)
		}
	}

	hist := s.History(ctx)
	if len(hist) != 10 {
		t.Fatalf("ring must hold exactly 10 entries, got %d", len(hist))
	}
	// Oldest two snapshots were evicted: the ring starts at the 3-item state.
	if hist[0].State.TotalItems != 3 {
		t.Fatalf("oldest surviving snapshot should have 3 items, got %d", hist[0].State.TotalItems)
	}
	if hist[9].State.TotalItems != 12 {
		t.Fatalf("newest snapshot should have 12 items, got %d", hist[9].State.TotalItems)
	}
	// Strictly ordered, oldest first.
	for i := 1; i < len(hist); i++ {
		if hist[i].SavedAt.Before(hist[i-1].SavedAt) {
			t.Fatalf("history out of order at %d", i)
		}
	}
}

func TestHistory_RapidSavesCoalesce(t *testing.T) {
	s, clock := newTestStore(t, time.Second)
	ctx := context.Background()

	s.AddItem(ctx, product("p1", 1.0), 1, nil)
	// Same instant: bulk update, must replace the newest entry.
	s.AddItem(ctx, product("p2", 1.0), 1, nil)
	s.AddItem(ctx, product("p3", 1.0), 1, nil)

	hist := s.History(ctx)
	if len(hist) != 1 {
		t.Fatalf("rapid saves must coalesce into one entry, got %d", len(hist))
	}
	if hist[0].State.TotalItems != 3 {
		t.Fatalf("coalesced entry must hold the latest state, got %d items", hist[0].State.TotalItems)
	}

	// Past the debounce window a new entry is appended.
	*clock = clock.Add(2 * time.Second)
	s.AddItem(ctx, product("p4", 1.0), 1, nil)
	if hist = s.History(ctx); len(hist) != 2 {
		t.Fatalf("expected a second entry after the window, got %d", len(hist))
	}
}

func TestClear_DropsSessionKeepsHistory(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()

	s.AddItem(ctx, product("p1", 2.0), 1, nil)
	if !s.Clear(ctx) {
		t.Fatalf("Clear failed")
	}
	if s.Load(ctx) != nil {
		t.Fatalf("session must be gone after Clear")
	}
	if s.Metadata(ctx) != nil {
		t.Fatalf("metadata must be gone after Clear")
	}
	if len(s.History(ctx)) == 0 {
		t.Fatalf("history must survive Clear for recovery")
	}
}

func TestMetadata_CreatedAtStableAcrossMutations(t *testing.T) {
	s, clock := newTestStore(t, 0)
	ctx := context.Background()

	s.AddItem(ctx, product("p1", 1.0), 1, nil)
	created := s.Metadata(ctx).CreatedAt

	*clock = clock.Add(time.Hour)
	s.AddItem(ctx, product("p2", 1.0), 1, nil)

	meta := s.Metadata(ctx)
	if !meta.CreatedAt.Equal(created) {
		t.Fatalf("CreatedAt must not move: %v -> %v", created, meta.CreatedAt)
	}
	if !meta.LastAccessedAt.After(created) {
		t.Fatalf("LastAccessedAt must advance: %v", meta.LastAccessedAt)
	}
	if meta.Version != SnapshotVersion {
		t.Fatalf("metadata version mismatch: %q", meta.Version)
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	src, clock := newTestStore(t, 0)
	ctx := context.Background()

	src.AddItem(ctx, product("p1", 10.0), 2, nil)
	*clock = clock.Add(time.Minute)
	src.AddItem(ctx, product("p2", 4.0), 1, nil)

	payload, exported := src.ExportSnapshot(ctx)
	if !exported || payload == "" {
		t.Fatalf("export failed")
	}

	dst, _ := newTestStore(t, 0)
	if !dst.ImportSnapshot(ctx, payload) {
		t.Fatalf("import of a valid export must succeed")
	}

	st := dst.Load(ctx)
	if st == nil || st.TotalItems != 3 || st.TotalValue != 24.0 {
		t.Fatalf("imported state mismatch: %+v", st)
	}
	if len(dst.History(ctx)) == 0 {
		t.Fatalf("history should import too")
	}
}

func TestImportSnapshot_RejectsMissingCurrent(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()

	if s.ImportSnapshot(ctx, `{"not_current":true}`) {
		t.Fatalf("document without a current field must be rejected")
	}
	if s.ImportSnapshot(ctx, `not json at all`) {
		t.Fatalf("non-JSON payload must be rejected")
	}
	if s.Load(ctx) != nil || s.Metadata(ctx) != nil {
		t.Fatalf("rejected imports must leave zero side effects")
	}
}

func TestImportSnapshot_NullCurrentClearsSession(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()

	s.AddItem(ctx, product("p1", 1.0), 1, nil)
	if !s.ImportSnapshot(ctx, `{"current":null}`) {
		t.Fatalf("null current is a valid clearing import")
	}
	if s.Load(ctx) != nil {
		t.Fatalf("session must be cleared by a null-current import")
	}
}

func TestImportSnapshot_TrimsOversizedHistory(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()

	doc := `{"current":{"items":[],"session_id":"x"},"history":[`
	for i := 0; i < 15; i++ {
		if i > 0 {
			doc += ","
		}
		doc += fmt.Sprintf(`{"saved_at":"2026-03-01T09:%02d:00Z","state":{"items":[],"total_items":%d}}`, i, i)
	}
	doc += `]}`

	if !s.ImportSnapshot(ctx, doc) {
		t.Fatalf("import failed")
	}
	hist := s.History(ctx)
	if len(hist) != 10 {
		t.Fatalf("imported history must be trimmed to the limit, got %d", len(hist))
	}
	if hist[9].State.TotalItems != 14 {
		t.Fatalf("trim must keep the newest entries, got %d", hist[9].State.TotalItems)
	}
}

func TestStore_DegradesToNoOpsWithoutTable(t *testing.T) {
	db := newStoreDB(t /* no migrations */)
	s := NewCartStore(db, repo.Records{}, 30*24*time.Hour, 10, 0, zerolog.Nop())
	ctx := context.Background()

	if s.AddItem(ctx, product("p1", 1.0), 1, nil) {
		t.Fatalf("AddItem must report failure when storage is unavailable")
	}
	if s.Load(ctx) != nil {
		t.Fatalf("Load must degrade to nil")
	}
	if s.History(ctx) != nil {
		t.Fatalf("History must degrade to nil")
	}
	if _, exported := s.ExportSnapshot(ctx); exported {
		t.Fatalf("ExportSnapshot must report failure")
	}
}
