package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// NotFoundError reports a missing entity, or one the caller may not know about.
type NotFoundError struct {
	Message string
}

func NewNotFoundError(msg string) error {
	return &NotFoundError{Message: msg}
}

func (err NotFoundError) Error() string { return err.Message }

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

type ForbiddenError struct {
	Message string
}

func NewForbiddenError(msg string) error {
	return &ForbiddenError{Message: msg}
}

func (err ForbiddenError) Error() string { return err.Message }

func IsForbidden(err error) bool {
	_, ok := errors.Cause(err).(*ForbiddenError)
	return ok
}

// ConflictError reports an operation that is not allowed in the entity's current state.
type ConflictError struct {
	Message string
}

func NewConflictError(msg string) error {
	return &ConflictError{Message: msg}
}

func (err ConflictError) Error() string { return err.Message }

func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(*ConflictError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
