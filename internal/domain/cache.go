package domain

import "time"

// Cache classes, the values stored in CacheEntry.Class. Each whitelisted
// path prefix maps to a class with its own TTL and network timeout; paths
// that match no known substring fall into the main bucket.
const (
	CacheClassProducts  = "products"
	CacheClassEmployees = "employees"
	CacheClassStatic    = "static"
	CacheClassMain      = "main"
)

// CacheEntry is one cached GET response, keyed by canonical request path.
// Entries are superseded in place by the next successful fetch and survive
// daemon restarts; freshness is computed against the per-class TTL, never
// stored.
//
// Fields:
//   - Path: canonical request path (primary key).
//   - Class: cache class used to pick TTL/timeout (indexed for status counts).
//   - Status: upstream HTTP status at fetch time.
//   - ContentType: upstream Content-Type, replayed on cache hits.
//   - Body: raw response body.
//   - CachedAt: when the entry was last refreshed.
type CacheEntry struct {
	Path        string    `json:"path"         gorm:"type:varchar(512);primaryKey"`
	Class       string    `json:"class"        gorm:"type:varchar(16);not null;index"`
	Status      int       `json:"status"       gorm:"not null"`
	ContentType string    `json:"content_type" gorm:"type:varchar(128)"`
	Body        []byte    `json:"body"         gorm:"type:blob"`
	CachedAt    time.Time `json:"cached_at"    gorm:"not null"`
}

// TableName returns the database table name for CacheEntry.
func (CacheEntry) TableName() string { return "cache_entries" }

// Age returns how long ago the entry was cached.
func (e CacheEntry) Age(now time.Time) time.Duration { return now.Sub(e.CachedAt) }
