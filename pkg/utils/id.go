package utils

import "github.com/google/uuid"

// NewConnectionID identifies one live transport session.
func NewConnectionID() string {
	return uuid.NewString()
}

// NewWatchLegID identifies one watch leg, independent of the source session's
// generation.
func NewWatchLegID() string {
	return uuid.NewString()
}
