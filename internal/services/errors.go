package services

import (
	"errors"
	"fmt"

	"github.com/SAP-F-2025/exam-service/internal/validator"
)

// ===== SENTINEL ERRORS =====

var (
	ErrTemplateNotFound = errors.New("exam template not found")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrQuestionNotFound = errors.New("question not found in attempt")
	ErrUserNotFound     = errors.New("user not found")

	ErrAttemptNotActive        = errors.New("attempt is not in progress")
	ErrAttemptAlreadyCompleted = errors.New("attempt is already completed")
	ErrResultsNotReady         = errors.New("results are available after the attempt is completed")
	ErrEmptyQuestionSet        = errors.New("template resolves to an empty question set")

	ErrActiveAttemptExists = errors.New("an attempt is already in progress")

	// ErrStaleVersion is returned when the caller-supplied expected version
	// no longer matches the persisted attempt.
	ErrStaleVersion = errors.New("attempt was modified by another request")

	// ErrConcurrentModification surfaces only after store-level version
	// conflicts keep recurring across the internal retries.
	ErrConcurrentModification = errors.New("concurrent modification, please retry")
)

// ===== TYPED ERRORS =====

type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

type PermissionError struct {
	UserID   string
	Resource string
	ID       uint
	Action   string
	Reason   string
}

func NewPermissionError(userID string, id uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:   userID,
		Resource: resource,
		ID:       id,
		Action:   action,
		Reason:   reason,
	}
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s may not %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ID, e.Reason)
}

// ===== ERROR KINDS =====

// ErrorKind is the stable, machine-checkable classification every service
// error maps to. The HTTP layer converts kinds to status codes; anything
// unclassified is reported as internal without leaking detail.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindForbidden  ErrorKind = "forbidden"
	KindConflict   ErrorKind = "conflict"
	KindInternal   ErrorKind = "internal"
)

func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTemplateNotFound),
		errors.Is(err, ErrAttemptNotFound),
		errors.Is(err, ErrQuestionNotFound),
		errors.Is(err, ErrUserNotFound):
		return KindNotFound
	case errors.Is(err, ErrActiveAttemptExists),
		errors.Is(err, ErrStaleVersion),
		errors.Is(err, ErrConcurrentModification):
		return KindConflict
	case errors.Is(err, ErrAttemptNotActive),
		errors.Is(err, ErrAttemptAlreadyCompleted),
		errors.Is(err, ErrResultsNotReady),
		errors.Is(err, ErrEmptyQuestionSet):
		return KindValidation
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return KindValidation
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return KindValidation
	}

	var permissionErr *PermissionError
	if errors.As(err, &permissionErr) {
		return KindForbidden
	}

	return KindInternal
}
