package rules

import (
	"context"
	"fmt"
	"sort"

	"github.com/francisco-leal/ModBot/farcaster"
)

// CheckContext is everything a predicate may look at
type CheckContext struct {
	Channel *ModeratedChannel
	User    *farcaster.User
	// Cast is nil when a user is evaluated outside of a cast (e.g. a join)
	Cast *farcaster.Cast
	Rule *Condition
}

// CheckResult is a predicate verdict. Message describes what was checked; the
// engine does not rewrite it when the condition is inverted.
type CheckResult struct {
	Result  bool
	Message string
}

// Check is implemented by every predicate. Implementations must be free of
// side effects so simulation and live evaluation can share them.
type Check interface {
	Check(ctx context.Context, c CheckContext) (CheckResult, error)
}

// CheckFunc adapts a function to the Check interface
type CheckFunc func(ctx context.Context, c CheckContext) (CheckResult, error)

func (f CheckFunc) Check(ctx context.Context, c CheckContext) (CheckResult, error) {
	return f(ctx, c)
}

// ArgDefinition describes one argument of a predicate or action
type ArgDefinition struct {
	Type         string `json:"type"`
	FriendlyName string `json:"friendlyName"`
	Description  string `json:"description,omitempty"`
	Required     bool   `json:"required,omitempty"`
}

// Definition describes a predicate to configuration tooling
type Definition struct {
	Name         RuleName                 `json:"name"`
	FriendlyName string                   `json:"friendlyName"`
	Description  string                   `json:"description"`
	Invertable   bool                     `json:"invertable"`
	Args         map[string]ArgDefinition `json:"args,omitempty"`
}

type registered struct {
	def   Definition
	check Check
}

// Registry maps rule names to predicates. It is filled once at process start
// and only read afterwards.
type Registry struct {
	checks map[RuleName]registered
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		checks: make(map[RuleName]registered),
	}
}

// Register adds a predicate. Registering the same name twice panics.
func (r *Registry) Register(def Definition, check Check) {
	if def.Name == "" {
		panic("rules: registering predicate without a name")
	}
	if _, exists := r.checks[def.Name]; exists {
		panic(fmt.Sprintf("rules: predicate %q registered twice", def.Name))
	}
	r.checks[def.Name] = registered{def: def, check: check}
}

// Lookup returns the predicate registered under name
func (r *Registry) Lookup(name RuleName) (Check, error) {
	reg, ok := r.checks[name]
	if !ok {
		return nil, &UnknownRuleError{Name: name}
	}
	return reg.check, nil
}

// Definition returns the metadata registered under name
func (r *Registry) Definition(name RuleName) (Definition, bool) {
	reg, ok := r.checks[name]
	return reg.def, ok
}

// Definitions lists every registered predicate sorted by name
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.checks))
	for _, reg := range r.checks {
		defs = append(defs, reg.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}
