package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the write collides with existing state.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates the input was rejected before reaching the store.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidation occurs when a write succeeded but the authorization cache could not be invalidated.
	ErrInvalidation = errors.New("cache invalidation failed")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
