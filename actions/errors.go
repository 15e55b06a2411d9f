package actions

import (
	"fmt"

	"github.com/francisco-leal/ModBot/rules"
)

// UnknownActionError is returned when no handler is registered for a type
type UnknownActionError struct {
	Type rules.ActionType
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("no handler for action %q", e.Type)
}

func (e *UnknownActionError) Unwrap() error {
	return rules.ErrConfiguration
}

// ActionError wraps a handler failure
type ActionError struct {
	Type rules.ActionType
	Err  error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %s failed: %v", e.Type, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}
