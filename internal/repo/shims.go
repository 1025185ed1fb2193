package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-pos-offline/internal/domain"
)

// Records adapts the free record functions to the small repository
// interfaces expected by store.CartStore and queue.OfflineQueue. This keeps
// the services decoupled from the concrete repo package while reusing the
// existing functions.
type Records struct{}

// Get proxies GetRecord.
func (Records) Get(ctx context.Context, db *gorm.DB, key string) (string, error) {
	return GetRecord(ctx, db, key)
}

// Put proxies PutRecord.
func (Records) Put(ctx context.Context, db *gorm.DB, key, value string) error {
	return PutRecord(ctx, db, key, value)
}

// Delete proxies DeleteRecord.
func (Records) Delete(ctx context.Context, db *gorm.DB, key string) error {
	return DeleteRecord(ctx, db, key)
}

// Entries adapts the cache entry functions to the repository interface
// expected by cache.Worker.
type Entries struct{}

// Get proxies GetCacheEntry.
func (Entries) Get(ctx context.Context, db *gorm.DB, path string) (*domain.CacheEntry, error) {
	return GetCacheEntry(ctx, db, path)
}

// Put proxies PutCacheEntry.
func (Entries) Put(ctx context.Context, db *gorm.DB, e *domain.CacheEntry) error {
	return PutCacheEntry(ctx, db, e)
}

// Clear proxies ClearCacheEntries.
func (Entries) Clear(ctx context.Context, db *gorm.DB) error {
	return ClearCacheEntries(ctx, db)
}

// Counts proxies CountCacheEntries.
func (Entries) Counts(ctx context.Context, db *gorm.DB) (map[string]int64, error) {
	return CountCacheEntries(ctx, db)
}
