// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-fleet/internal/shared"
)

// ErrUnauthorized marks a request without a valid session or bearer token.
var ErrUnauthorized = errors.New("unauthorized")

// Generic detail strings surfaced to callers. Internal error text never is.
const (
	DetailForbidden = "not authorized for this action"
	DetailRetry     = "could not complete, try again"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", DetailForbidden)
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "resource not found")
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrConflict):
		w.Header().Set("Retry-After", "1")
		Problem(w, http.StatusConflict, "Conflict", DetailRetry)
	case errors.Is(err, shared.ErrStoreUnavailable):
		Problem(w, http.StatusServiceUnavailable, "Service Unavailable", DetailRetry)
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", DetailRetry)
	}
}

// IsClientError reports whether err is caused by the caller rather than the server.
func IsClientError(err error) bool {
	return errors.Is(err, shared.ErrForbidden) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, shared.ErrValidation)
}
