package sentinel

import "errors"

// Sentinel dependency errors. Stores should return these (optionally wrapped)
// so services can translate them into domain errors exactly once.
var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicatePosition signals that another writer already committed an
	// entry at the position this insert targeted. The append writer treats it
	// as a lost race on the chain tail and retries.
	ErrDuplicatePosition = errors.New("duplicate chain position")

	ErrUnavailable = errors.New("unavailable")
)
