package attendance

import "errors"

// Business errors. Callers render these to users; they are expected outcomes
// and are never logged as failures.
var (
	// ErrNotFound is returned when a session, class or user reference does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrSessionInactive is returned when an operation requires an Active session.
	ErrSessionInactive = errors.New("attendance session is not active")

	// ErrAlreadyEnded is returned by End on a session that has already ended.
	ErrAlreadyEnded = errors.New("attendance session already ended")

	// ErrInvalidToken is returned when the presented token is not the current one.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrTokenExpired is returned when the token matches but is older than the rotation interval.
	ErrTokenExpired = errors.New("token has expired")

	// ErrDuplicateSubmission is returned when the student already has a mark for the session.
	ErrDuplicateSubmission = errors.New("attendance already marked for this session")

	// ErrConstraintViolation is returned when a lifecycle precondition is violated.
	ErrConstraintViolation = errors.New("constraint violation")
)

var businessErrors = []error{
	ErrNotFound,
	ErrSessionInactive,
	ErrAlreadyEnded,
	ErrInvalidToken,
	ErrTokenExpired,
	ErrDuplicateSubmission,
	ErrConstraintViolation,
}

// IsBusiness reports whether err is one of the expected, caller-recoverable
// error kinds. Anything else (storage or entropy failure) is unexpected.
func IsBusiness(err error) bool {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
