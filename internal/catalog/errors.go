package catalog

import "errors"

var (
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUniqueViolation indicates a unique key such as a filepath or tag name is taken.
	ErrUniqueViolation = errors.New("unique constraint violated")
	// ErrIntegrityViolation indicates a reference to a missing or foreign record.
	ErrIntegrityViolation = errors.New("integrity constraint violated")
)
