// Package repo implements the data persistence layer for the offline
// engine, backed by GORM over SQLite. This file provides repository helpers
// for cached GET responses used by the network cache layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-pos-offline/internal/domain"
)

// GetCacheEntry returns the cached response for the canonical path, or
// ErrNotFound when the path has never been fetched successfully.
func GetCacheEntry(ctx context.Context, db *gorm.DB, path string) (*domain.CacheEntry, error) {
	var e domain.CacheEntry
	err := db.WithContext(ctx).
		Where("path = ?", path).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// PutCacheEntry stores (or refreshes in place) the cached response for its
// canonical path. The previous entry, if any, is superseded atomically.
func PutCacheEntry(ctx context.Context, db *gorm.DB, e *domain.CacheEntry) error {
	if e.CachedAt.IsZero() {
		e.CachedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			DoUpdates: clause.AssignmentColumns([]string{"class", "status", "content_type", "body", "cached_at"}),
		}).
		Create(e).Error
}

// ClearCacheEntries wipes every cached response. Used by the CLEAR_CACHE
// control operation.
func ClearCacheEntries(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).
		Where("1 = 1").
		Delete(&domain.CacheEntry{}).Error
}

// CountCacheEntries returns per-class entry counts keyed by cache class.
// Classes with no entries are absent from the map.
func CountCacheEntries(ctx context.Context, db *gorm.DB) (map[string]int64, error) {
	type row struct {
		Class string
		N     int64
	}
	var rows []row
	err := db.WithContext(ctx).
		Model(&domain.CacheEntry{}).
		Select("class, count(*) as n").
		Group("class").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Class] = r.N
	}
	return out, nil
}
