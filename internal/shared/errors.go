package shared

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors classifying every failure the identity core can surface.
var (
	// ErrNotFound indicates a missing or soft-deleted record.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation or a blocked delete.
	ErrConflict = errors.New("conflict")
	// ErrInvalidReference indicates foreign IDs that do not resolve.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrValidation indicates malformed input reaching the core.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized indicates a missing or unusable token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates a missing permission.
	ErrForbidden = errors.New("forbidden")
)

// Error decorates a sentinel with the entity and IDs a caller needs to act on
// the failure. errors.Is against the sentinels above keeps call sites simple.
type Error struct {
	kind    error
	Entity  string
	Message string
	IDs     []string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.kind }

// NotFoundError reports a missing record of the given entity kind.
func NotFoundError(entity, id string) *Error {
	return &Error{
		kind:    ErrNotFound,
		Entity:  entity,
		Message: fmt.Sprintf("%s with ID %s not found", entity, id),
		IDs:     []string{id},
	}
}

// ConflictError reports a uniqueness violation or blocked delete.
func ConflictError(entity, message string) *Error {
	return &Error{kind: ErrConflict, Entity: entity, Message: message}
}

// InvalidReferenceError reports every foreign ID that failed to resolve.
func InvalidReferenceError(entity string, ids []string) *Error {
	return &Error{
		kind:    ErrInvalidReference,
		Entity:  entity,
		Message: fmt.Sprintf("one or more %s IDs are invalid: %s", entity, strings.Join(ids, ", ")),
		IDs:     ids,
	}
}

// ValidationError reports malformed input that slipped past the HTTP layer.
func ValidationError(message string) *Error {
	return &Error{kind: ErrValidation, Message: message}
}

// InvalidIDs extracts the offending ID list from an error, if it carries one.
func InvalidIDs(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.IDs
	}
	return nil
}
