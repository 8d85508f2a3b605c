package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain failures so handlers can map them to HTTP
// status codes without string matching.
type ErrorKind string

const (
	ErrValidation    ErrorKind = "validation"
	ErrAuthorization ErrorKind = "authorization"
	ErrState         ErrorKind = "state"
	ErrResource      ErrorKind = "resource"
	ErrNotFound      ErrorKind = "not_found"
)

type DomainError struct {
	Kind    ErrorKind
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewValidationError(format string, args ...any) error {
	return &DomainError{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func NewAuthorizationError(format string, args ...any) error {
	return &DomainError{Kind: ErrAuthorization, Message: fmt.Sprintf(format, args...)}
}

func NewStateError(format string, args ...any) error {
	return &DomainError{Kind: ErrState, Message: fmt.Sprintf(format, args...)}
}

func NewResourceError(format string, args ...any) error {
	return &DomainError{Kind: ErrResource, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(format string, args ...any) error {
	return &DomainError{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from any error in the chain; wrapped
// non-domain errors report as validation-neutral empty kind.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
