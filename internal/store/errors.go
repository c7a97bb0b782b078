package store

import (
	"errors"
	"fmt"
)

// Base errors. Implementations map driver errors onto these so callers never
// inspect driver-specific types.
var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicate     = errors.New("record already exists")
	ErrInvalidEntity = errors.New("record failed validation")
)

// Entity-specific errors wrap the base errors above.
var (
	ErrUserNotFound   = fmt.Errorf("%w: user", ErrNotFound)
	ErrReportNotFound = fmt.Errorf("%w: report", ErrNotFound)
	ErrEmailExists    = fmt.Errorf("%w: email already registered", ErrDuplicate)
)

// IsNotFoundError reports whether err wraps ErrNotFound.
func IsNotFoundError(err error) bool { return errors.Is(err, ErrNotFound) }

// IsDuplicateError reports whether err wraps ErrDuplicate.
func IsDuplicateError(err error) bool { return errors.Is(err, ErrDuplicate) }
