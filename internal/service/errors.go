package service

import (
	"errors"
	"strings"
)

var (
	// Item workflow
	ErrItemNotFound    = errors.New("item not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidState    = errors.New("invalid state")
	ErrInvalidItemType = errors.New("invalid item type")
	ErrSelfClaim       = errors.New("cannot claim own item")
	ErrAlreadyClaimed  = errors.New("item already claimed")

	// Auth gate
	ErrMissingToken     = errors.New("missing token")
	ErrInvalidToken     = errors.New("invalid token")
	ErrInactiveAccount  = errors.New("account inactive")
	ErrInsufficientRole = errors.New("insufficient role")

	// Accounts
	ErrEmailAlreadyExists    = errors.New("email already exists")
	ErrUsernameAlreadyExists = errors.New("username already exists")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrUserNotFound          = errors.New("user not found")
	ErrSelfModification      = errors.New("admins cannot demote or deactivate themselves")
)

// WorkflowError pairs a sentinel with a caller-facing message.
type WorkflowError struct {
	Kind    error
	Message string
}

func (e *WorkflowError) Error() string { return e.Message }

func (e *WorkflowError) Unwrap() error { return e.Kind }

func newWorkflowError(kind error, message string) error {
	return &WorkflowError{Kind: kind, Message: message}
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when input fails field-level validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// IsUnauthenticated reports whether err means the caller could not be identified.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrMissingToken) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrInactiveAccount) ||
		errors.Is(err, ErrInvalidCredentials)
}
