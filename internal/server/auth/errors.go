package auth

import "errors"

// Session core errors
var (
	// ErrUnauthenticated indicates an invalid, expired or unknown credential.
	// Deliberately carries no detail about which check failed.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrTokenReuse indicates a refresh token that no longer matches the
	// current session slot - either already rotated away or stolen.
	// Always terminal for the presented token.
	ErrTokenReuse = errors.New("refresh token reuse detected")
)
