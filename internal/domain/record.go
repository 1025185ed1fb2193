package domain

import "time"

// Well-known record keys. External consumers must go through the store and
// queue APIs; the keys are namespaced so unrelated records can share the
// table without collisions.
const (
	KeyCartState    = "pos:cart:state"
	KeyCartMetadata = "pos:cart:meta"
	KeyCartHistory  = "pos:cart:history"
	KeyOfflineQueue = "pos:queue"
)

// KVRecord is the key-value persistence medium backing the cart session and
// the offline queue. Each record holds one JSON document under a namespaced
// key; every mutating store call is a single read-modify-write of one row.
//
// Fields:
//   - Key: namespaced record key (primary key).
//   - Value: JSON document, opaque to this layer.
//   - UpdatedAt: timestamp managed by GORM; useful when inspecting the DB.
type KVRecord struct {
	Key       string    `json:"key"        gorm:"type:varchar(128);primaryKey"`
	Value     string    `json:"value"      gorm:"type:text;not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for KVRecord.
func (KVRecord) TableName() string { return "kv_records" }
