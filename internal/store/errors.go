// Package store implements the Local State Store: the durable cart session,
// its metadata, and the bounded recovery history. This file centralizes
// service-level error values used internally and by snapshot validation.
//
// Note that most store operations deliberately do not surface storage
// errors to callers: when the persistence medium is unavailable the store
// degrades to no-ops (nil/false results) and logs once per session, so the
// UI never sees a modal dead-end. The sentinels below exist for the few
// paths where callers need to branch (import validation, tests).
package store

import "errors"

var (
	// ErrStorageUnavailable indicates the persistence medium rejected a
	// read or write. Operations observing it degrade to nil/false.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrMalformedSnapshot is returned when an import payload fails shape
	// validation. The import is rejected atomically with zero side effects.
	ErrMalformedSnapshot = errors.New("malformed snapshot document")
)
