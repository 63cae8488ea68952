package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")

	// ErrForbidden is returned when the policy decision for an action is deny.
	ErrForbidden = errors.New("not authorized for this action")
	// ErrValidation marks malformed input rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a transaction rolled back on a serialization failure or deadlock.
	ErrConflict = errors.New("could not complete, try again")
	// ErrOperationFailed is the only error surfaced for a rolled-back mutation.
	ErrOperationFailed = errors.New("could not complete, try again")
	// ErrStoreUnavailable indicates the backing store could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
)
