package fim

import "errors"

// Sentinel errors surfaced by Store implementations. Callers check them
// with errors.Is; the concrete store wraps them with backend detail.
var (
	// ErrStoreReadOnly means the backing database file cannot be written.
	ErrStoreReadOnly = errors.New("database is read-only")

	// ErrStoreBusy means the database stayed locked past the store's
	// internal retry budget.
	ErrStoreBusy = errors.New("database is busy")

	// ErrRecordNotFound is returned by LoadRecord for an unknown path.
	ErrRecordNotFound = errors.New("record not found")
)

// Canonical per-file error reasons recorded on FileMetadata when hashing
// fails. The UI maps these to localized strings.
const (
	ReasonPermissionDenied = "insufficient permissions"
	ReasonFileVanished     = "file no longer exists"
)
