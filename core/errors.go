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

// notFound signals that a requested resource does not exist.
type notFound struct {
	message string
}

func NewNotFoundError(msg string) error {
	return &notFound{message: msg}
}

func (e notFound) Error() string {
	return e.message
}

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*notFound)
	return ok
}

// unauthorized signals that a request carries missing, invalid, revoked
// or no-longer-acceptable credentials. The message tells which.
type unauthorized struct {
	message string
}

func NewUnauthorizedError(msg string) error {
	return &unauthorized{message: msg}
}

func (e unauthorized) Error() string {
	return e.message
}

func IsUnauthorized(err error) bool {
	_, ok := errors.Cause(err).(*unauthorized)
	return ok
}

// forbidden signals that an authenticated caller may not perform the operation.
type forbidden struct {
	message string
}

func NewForbiddenError(msg string) error {
	return &forbidden{message: msg}
}

func (e forbidden) Error() string {
	return e.message
}

func IsForbidden(err error) bool {
	_, ok := errors.Cause(err).(*forbidden)
	return ok
}

// conflict signals that the operation is not allowed in the resource's current state.
type conflict struct {
	message string
}

func NewConflictError(msg string) error {
	return &conflict{message: msg}
}

func (e conflict) Error() string {
	return e.message
}

func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(*conflict)
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
