package util

import "github.com/google/uuid"

// NewID returns a random UUID string used to correlate a single execution
// across monitors, logs and traces.
func NewID() string { return uuid.NewString() }
