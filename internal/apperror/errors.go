// Package apperror defines the error kinds returned by billing services.
// Callers branch on kind with errors.Is; the concrete *Error carries the
// entity and transition details for messages and logs.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not_found")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrBusinessRule      = errors.New("business_rule_violation")
	ErrValidation        = errors.New("validation_error")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
)

type Error struct {
	Kind    error
	Entity  string
	ID      string
	From    string
	To      string
	Action  string
	Message string
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrNotFound:
		return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
	case ErrInvalidTransition:
		return fmt.Sprintf("%s cannot transition from %s to %s", e.Entity, e.From, e.To)
	case ErrForbidden:
		if e.Message == "" {
			return fmt.Sprintf("forbidden: %s", e.Action)
		}
		return fmt.Sprintf("forbidden: %s: %s", e.Action, e.Message)
	}
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

func NotFound(entity string, id any) error {
	return &Error{Kind: ErrNotFound, Entity: entity, ID: fmt.Sprint(id)}
}

func InvalidTransition(entity string, from, to any) error {
	return &Error{
		Kind:   ErrInvalidTransition,
		Entity: entity,
		From:   fmt.Sprint(from),
		To:     fmt.Sprint(to),
	}
}

func BusinessRule(format string, args ...any) error {
	return &Error{Kind: ErrBusinessRule, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(action, reason string) error {
	return &Error{Kind: ErrForbidden, Action: action, Message: reason}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind error) bool {
	return errors.Is(err, kind)
}
