package model

import "errors"

var (
	// ErrSessionNotFound is returned when a session is not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUnsupportedLanguage is returned when a session creation request names
	// a language outside the supported set.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrInvalidPayload is returned when a code update payload is missing
	// required fields.
	ErrInvalidPayload = errors.New("invalid update payload")
)
