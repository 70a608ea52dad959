package auth

import "gitlab.com/tozd/go/errors"

// Authentication errors. Both map to UNAUTHENTICATED so a caller cannot
// tell a wrong token from a missing one by status code.
var (
	ErrMissingToken = errors.New("API token required in x-api-key metadata")
	ErrInvalidToken = errors.New("invalid API token")
	ErrWeakToken    = errors.New("API token must be at least 16 characters")
)
