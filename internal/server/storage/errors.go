package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrOAuthAccountNotFound indicates that no oauth account matches
	// the (provider, provider profile id) pair
	ErrOAuthAccountNotFound = errors.New("oauth account not found")

	// ErrSessionNotFound indicates that user has no refresh session
	ErrSessionNotFound = errors.New("refresh session not found")

	// ErrEmailTaken indicates that the email is already used by another
	// user not linked to the presented oauth identity
	ErrEmailTaken = errors.New("email already taken")

	// ErrPermissionNotFound indicates that a referenced permission does not exist
	ErrPermissionNotFound = errors.New("permission not found")

	// ErrUnavailable marks transient failures (busy database, lost
	// connection); callers may retry with backoff. All other errors are fatal.
	ErrUnavailable = errors.New("storage temporarily unavailable")
)
