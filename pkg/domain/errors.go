package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports malformed or incomplete input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// InvalidTransitionError reports a requested state that is not reachable from
// the current one.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s %s cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}

// ItemFailure names one batch member that blocked an operation.
type ItemFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// ConflictError reports a uniqueness or eligibility violation. Batch
// operations list every failing member in Items.
type ConflictError struct {
	Message string
	Items   []ItemFailure
}

func (e ConflictError) Error() string {
	if len(e.Items) == 0 {
		return "conflict: " + e.Message
	}
	parts := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		parts = append(parts, item.ID+": "+item.Reason)
	}
	return fmt.Sprintf("conflict: %s [%s]", e.Message, strings.Join(parts, "; "))
}

// NotFoundError reports an unknown reference.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ConcurrencyError reports a stale version token. It is the only error class
// callers should retry automatically.
type ConcurrencyError struct {
	Entity   EntityType
	ID       string
	Expected int64
	Actual   int64
}

func (e ConcurrencyError) Error() string {
	return fmt.Sprintf("%s %s version mismatch: expected %d, current %d", e.Entity, e.ID, e.Expected, e.Actual)
}

// PermissionError reports an action denied by the authorization policy.
type PermissionError struct {
	Actor  string
	Action string
}

func (e PermissionError) Error() string {
	return fmt.Sprintf("actor %q is not allowed to %s", e.Actor, e.Action)
}

// IsRetryable reports whether err signals a stale read that the caller should
// refetch and retry.
func IsRetryable(err error) bool {
	var ce ConcurrencyError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}
