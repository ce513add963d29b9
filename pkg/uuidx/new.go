// Package uuidx creates the identifiers of messages, sessions and synthesized tool calls.
package uuidx

import "github.com/google/uuid"

// New returns a version 7 UUID, so ids sort by creation time.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString is New in its canonical text form.
func NewString() string {
	return New().String()
}
