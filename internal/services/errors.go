package services

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to callers. Handlers map them onto HTTP status codes.
var (
	ErrUnauthorized            = errors.New("unauthorized")
	ErrNotFound                = errors.New("not found")
	ErrTestAlreadyCompleted    = errors.New("test already completed")
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")
	ErrAttemptExpired          = errors.New("attempt expired")
	ErrResultNotReady          = errors.New("result not ready")
	ErrValidationFailed        = errors.New("validation failed")
	ErrTestNotEditable         = errors.New("test cannot be edited")
)

// Specific not-found errors keep their own message and still match ErrNotFound.
var (
	ErrTestNotFound     = fmt.Errorf("test %w", ErrNotFound)
	ErrTestNotPublished = fmt.Errorf("published test %w", ErrNotFound)
	ErrAttemptNotFound  = fmt.Errorf("attempt %w", ErrNotFound)
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
)

// PermissionError describes who was denied what. It matches ErrUnauthorized.
type PermissionError struct {
	UserID   string
	Resource string
	ID       string
	Action   string
	Reason   string
}

func NewPermissionError(userID, id, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:   userID,
		Resource: resource,
		ID:       id,
		Action:   action,
		Reason:   reason,
	}
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %s: %s", e.UserID, e.Action, e.Resource, e.ID, e.Reason)
}

func (e *PermissionError) Unwrap() error {
	return ErrUnauthorized
}
