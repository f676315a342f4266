// Package common defines shared sentinel errors used across the server and
// worker processes of filepin. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal  = errors.New("internal error")
	ErrorForbidden = errors.New("forbidden")

	// Validation errors: bad input, never retried.
	ErrorValidation   = errors.New("validation error")
	ErrorInvalidState = errors.New("invalid state")

	// Upload-assembly errors. An incomplete upload leaves the session
	// usable so the client can re-send the missing chunk.
	ErrorIncompleteUpload = errors.New("incomplete upload")

	// Verification errors.
	ErrorVerificationPending = errors.New("verification already pending")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)
