package models

import "errors"

// Error taxonomy shared by every layer. Callers wrap these with fmt.Errorf("...: %w", err) and classify with errors.Is.
var (
	// entity absent at the store
	ErrNotFound = errors.New("not found")
	// registration collision
	ErrAlreadyExists = errors.New("already exists")
	// signature or key failure; never says which step failed
	ErrAuthMismatch = errors.New("signature and public key mismatch")
	// public key supplied at registration could not be imported
	ErrInvalidKeyFormat = errors.New("invalid public key format")
	// duplicate like/repost/follow, empty content, un-action on absent action, malformed payload
	ErrDomainViolation = errors.New("domain violation")
	// transport, timeout, or write conflict at the store
	ErrStoreFailure = errors.New("store failure")
	// unreachable followed user or unresolved post while building a timeline
	ErrAggregationFailure = errors.New("timeline aggregation failure")
)

// Returns a DomainViolation carrying a human readable message.
func Violation(format string, args ...any) error {
	return &violationError{msg: sprintf(format, args...)}
}

type violationError struct {
	msg string
}

func (e *violationError) Error() string {
	return e.msg
}

func (e *violationError) Unwrap() error {
	return ErrDomainViolation
}

// Kind names the taxonomy class of err, for metrics labels and error bodies. Unclassified errors are "InternalError".
func Kind(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, ErrAuthMismatch):
		return "AuthMismatch"
	case errors.Is(err, ErrInvalidKeyFormat):
		return "InvalidKeyFormat"
	case errors.Is(err, ErrAlreadyExists):
		return "AlreadyExists"
	case errors.Is(err, ErrDomainViolation):
		return "DomainViolation"
	case errors.Is(err, ErrAggregationFailure):
		return "AggregationFailure"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrStoreFailure):
		return "StoreFailure"
	default:
		return "InternalError"
	}
}
