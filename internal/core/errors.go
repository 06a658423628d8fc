package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Guard failures. Services return these (possibly wrapped) instead of partial results.
var (
	// ErrNotFound covers both missing rows and rows owned by another household,
	// so callers cannot probe for existence across households.
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrValidation          = errors.New("validation failed")
	ErrReferentialConflict = errors.New("referenced by other records")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("forbidden")
	ErrConflict            = errors.New("already exists")

	// ErrInsufficientBalance is reported as not-found.
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", ErrNotFound)

	// ErrTotalTooLarge is returned when a balance or an aggregate would pass MaxBalanceCents.
	ErrTotalTooLarge = fmt.Errorf("%w: total exceeds the supported maximum", ErrInvalidState)
)

// Field-level validation failures.
var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidYear      = errors.New("invalid year")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrAmountTooLarge   = errors.New("amount too large")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyName        = errors.New("empty name")
	ErrTooLong          = errors.New("too long")
	ErrInvalidColor     = errors.New("color must be #RRGGBB")
	ErrInvalidEnum      = errors.New("unsupported value")
	ErrInvalidID        = errors.New("invalid id")
)

// ValidationError collects field messages. errors.Is(err, ErrValidation) holds for it.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Add records a failure for field; the first failure per field wins.
func (e *ValidationError) Add(field string, err error) {
	if err == nil {
		return
	}
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = err.Error()
	}
}

// Err returns nil when nothing was recorded.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// UserMessage returns the message meant for the user, or "" when err carries none.
func UserMessage(err error) string {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.UserMessage
	}
	return ""
}
