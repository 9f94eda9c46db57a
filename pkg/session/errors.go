package session

import "errors"

// Session errors.
var (
	// ErrNotFound is returned by a Store when no values are persisted for an ID.
	ErrNotFound = errors.New("session: not found")

	// ErrNoStore is returned when persistence is requested without a Store.
	ErrNoStore = errors.New("session: no store configured")
)
