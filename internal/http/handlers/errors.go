package handlers

// Stable machine-readable error codes returned in ErrorResponse.Code.
// Clients branch on these, never on Message text, so the set below is part
// of the API contract: add freely, never rename.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeMethodNotAllowed   = "method_not_allowed"
	ErrCodeSnapshotRejected   = "snapshot_rejected"
	ErrCodeStorageUnavailable = "storage_unavailable"
	ErrCodeDrainInFlight      = "drain_in_flight"
	ErrCodeCacheUnavailable   = "cache_unavailable"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeInternalError      = "internal_error"
)
