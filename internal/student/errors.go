package student

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrMissingField     = errors.New("missing required field")
	ErrInvalidEmail     = errors.New("please enter a valid email address")
	ErrAgeOutOfRange    = errors.New("age must be between 16 and 100 years")
	ErrInvalidContact   = errors.New("contact number must be 10 digits")
	ErrPhotoTooLarge    = errors.New("photo must be less than 500KB")
	ErrDuplicateEmail   = errors.New("email already exists for another student")
	ErrStudentNotFound  = errors.New("student not found")
	ErrStoreUnavailable = errors.New("record store unavailable")
	ErrInvalidStage     = errors.New("operation not allowed in current stage")
	ErrInvalidInput     = errors.New("invalid input")
)

// FieldError reports the first required field that was left empty.
type FieldError struct {
	Label string
}

func (e *FieldError) Error() string {
	return e.Label + " is required"
}

func (e *FieldError) Unwrap() error {
	return ErrMissingField
}

// StoreError wraps a driver or connectivity failure. It matches ErrStoreUnavailable.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// storeErr passes domain errors through untouched and wraps everything else.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrStudentNotFound, ErrDuplicateEmail, ErrInvalidStage, ErrStoreUnavailable, ErrInvalidInput, context.Canceled} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return &StoreError{Op: op, Err: err}
}

// IsValidationError reports whether err is a rejected submission rather than a store failure.
func IsValidationError(err error) bool {
	for _, kind := range []error{ErrMissingField, ErrInvalidEmail, ErrAgeOutOfRange, ErrInvalidContact, ErrPhotoTooLarge, ErrInvalidInput} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// ErrorKind returns a short label for metrics and logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrInvalidEmail):
		return "invalid_email"
	case errors.Is(err, ErrAgeOutOfRange):
		return "age_out_of_range"
	case errors.Is(err, ErrInvalidContact):
		return "invalid_contact"
	case errors.Is(err, ErrPhotoTooLarge):
		return "photo_too_large"
	case errors.Is(err, ErrDuplicateEmail):
		return "duplicate_email"
	case errors.Is(err, ErrStudentNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidStage):
		return "invalid_stage"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}
