// Package followup holds the pure rules of the follow-up cadence: template
// ordering, the unlock predicate and the error taxonomy shared by the store,
// services and handlers.
package followup

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a category, template, conversation or
	// attachment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConfirmationRequired is returned by arm when no valid confirmation
	// token accompanies the request.
	ErrConfirmationRequired = errors.New("arming requires a valid confirmation token")

	// ErrTemplateLocked is returned by the manual insert path for a template
	// whose delay has not elapsed yet.
	ErrTemplateLocked = errors.New("template is still locked")
)

// ValidationError rejects a write with bad input
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StateError rejects an operation the attachment state machine does not allow
type StateError struct {
	ConversationID string
	Reason         string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("conversation %s: %s", e.ConversationID, e.Reason)
}

// NoAttachment builds the StateError used when a conversation has no
// follow-up attached.
func NoAttachment(conversationID string) error {
	return &StateError{ConversationID: conversationID, Reason: "no follow-up attached"}
}

// IsValidation reports whether err is (or wraps) a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsState reports whether err is (or wraps) a StateError
func IsState(err error) bool {
	var s *StateError
	return errors.As(err, &s)
}
