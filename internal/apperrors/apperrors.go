package apperrors

import (
	"errors"
	"net/http"
)

// Moderation error taxonomy. Callers classify with errors.Is; implementations
// wrap these with fmt.Errorf("...: %w", err) to add context.
var (
	// ErrInvalidInput marks a malformed submission or request. Not retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks an unknown item or moderator.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyAssigned is returned when an item is held by another active moderator.
	ErrAlreadyAssigned = errors.New("item already assigned")

	// ErrInsufficientPermission is returned when a moderator's tier or risk ceiling forbids the operation.
	ErrInsufficientPermission = errors.New("insufficient permission")

	// ErrInvalidTransition is returned when the item's state does not allow the operation.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrStateConflict is returned when a compare-and-set lost against a concurrent writer.
	// Safe to retry once against fresh state.
	ErrStateConflict = errors.New("state conflict")

	// ErrStorageUnavailable marks a persistence failure. The write was not committed.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// IsRetryable reports whether err may succeed when retried against fresh state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStateConflict)
}

// HTTPStatus maps an error from the moderation core to an HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientPermission):
		return http.StatusForbidden
	case errors.Is(err, ErrAlreadyAssigned),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrStateConflict):
		return http.StatusConflict
	case errors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a stable machine-readable code for an error.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientPermission):
		return "insufficient_permission"
	case errors.Is(err, ErrAlreadyAssigned):
		return "already_assigned"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrStateConflict):
		return "state_conflict"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal_error"
	}
}
