package util

import "github.com/google/uuid"

// NewID returns a random identifier for inbox and outbox records.
func NewID() string {
	return uuid.NewString()
}
