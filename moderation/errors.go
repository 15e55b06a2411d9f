package moderation

import "fmt"

// ValidationError is returned when a moderation request is missing its
// channel or user. No evaluation or logging happens.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("moderation request is missing %s", e.Field)
}
