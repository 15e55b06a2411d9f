package rules

import (
	"errors"
	"fmt"
)

// ErrConfiguration is matched by every error caused by a corrupt or unsupported
// stored configuration. Such errors are never retried.
var ErrConfiguration = errors.New("invalid moderation configuration")

// ConfigurationError reports a stored configuration the engine cannot run
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// UnknownRuleError is returned when a condition names an unregistered predicate
type UnknownRuleError struct {
	Name RuleName
}

func (e *UnknownRuleError) Error() string {
	return fmt.Sprintf("no function for rule %q", e.Name)
}

func (e *UnknownRuleError) Unwrap() error {
	return ErrConfiguration
}

// PredicateError wraps a failed external lookup inside a predicate
type PredicateError struct {
	Rule RuleName
	Err  error
}

func (e *PredicateError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.Rule, e.Err)
}

func (e *PredicateError) Unwrap() error {
	return e.Err
}

// DeserializationError reports a malformed stored document
type DeserializationError struct {
	What string
	Err  error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("invalid %s document: %v", e.What, e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}
