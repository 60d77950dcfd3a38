package util

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const publicIDLength = 16

// NewPublicID generates a URL-safe public identifier for rows exposed
// through the API (chunks, trace artifacts). Database ids stay internal.
func NewPublicID() (string, error) {
	return gonanoid.New(publicIDLength)
}

// MustPublicID is NewPublicID for call sites where id generation failure
// is unrecoverable anyway (entropy exhaustion).
func MustPublicID() string {
	return gonanoid.Must(publicIDLength)
}
