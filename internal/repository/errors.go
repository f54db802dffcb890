package repository

import "errors"

var (
	// ErrStaleTransition means a conditional update matched no row because
	// the current state differed from the expected prior state.
	ErrStaleTransition = errors.New("stale state transition")
	// ErrNotFound wraps pgx.ErrNoRows at the repository boundary.
	ErrNotFound = errors.New("record not found")
)
