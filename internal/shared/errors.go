package shared

import "errors"

var (
	// ErrNotFound indicates resource not found. Inaccessible resources are
	// reported the same way, so existence is never leaked to the caller.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the actor lacks the required permission.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates a request without a resolvable actor.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation indicates a malformed request payload.
	ErrValidation = errors.New("validation failed")
)
