// Package repo implements the data persistence layer for the offline
// engine, backed by GORM over SQLite. This file provides the key-value
// record repository that backs the cart session documents and the offline
// mutation queue.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only the
// read and write of one JSON document per namespaced key.
//
// Error semantics:
//   - When a key has no record, GetRecord returns gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (locked file, corrupted medium, etc.) the raw gorm error
//     is propagated; callers translate it into degraded-mode behavior.
//
// Functions:
//
//   - GetRecord(ctx, db, key) -> json string, error
//     Reads the document stored under key, or ErrNotFound.
//
//   - PutRecord(ctx, db, key, value) -> error
//     Upserts the document under key (last write wins).
//
//   - DeleteRecord(ctx, db, key) -> error
//     Removes the record; deleting a missing key is not an error.
//
// This repository is wrapped by higher-level services (store.CartStore,
// queue.OfflineQueue) which own serialization and the business invariants.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-pos-offline/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetRecord reads the JSON document stored under key. If no record exists
// it returns ErrNotFound; on other DB errors, the raw error is returned.
func GetRecord(ctx context.Context, db *gorm.DB, key string) (string, error) {
	var rec domain.KVRecord
	err := db.WithContext(ctx).
		Where("key = ?", key).
		First(&rec).Error
	if err != nil {
		return "", err
	}
	return rec.Value, nil
}

// PutRecord upserts the JSON document under key. The write replaces any
// existing value atomically (single-row ON CONFLICT update).
func PutRecord(ctx context.Context, db *gorm.DB, key, value string) error {
	rec := domain.KVRecord{Key: key, Value: value}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&rec).Error
}

// DeleteRecord removes the record stored under key. Deleting a key that
// does not exist is a no-op, not an error.
func DeleteRecord(ctx context.Context, db *gorm.DB, key string) error {
	err := db.WithContext(ctx).
		Where("key = ?", key).
		Delete(&domain.KVRecord{}).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
