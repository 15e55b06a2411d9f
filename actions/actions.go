// Package actions executes the steps a matched rule set asks for: curating
// or hiding casts, bans, cooldowns and bypass list changes.
package actions

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/francisco-leal/ModBot/farcaster"
	"github.com/francisco-leal/ModBot/rules"
)

// ExecutionMode selects whether decisions reach the outside world
type ExecutionMode int

const (
	// ModeLive runs handlers and persists log entries
	ModeLive ExecutionMode = iota
	// ModeSimulation records decisions only
	ModeSimulation
)

func (m ExecutionMode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModeSimulation:
		return "simulation"
	default:
		return fmt.Sprintf("ExecutionMode(%d)", int(m))
	}
}

// ActionContext is everything a handler may act on
type ActionContext struct {
	Channel *rules.ModeratedChannel
	User    *farcaster.User
	// Cast is nil when the decision concerns a user rather than a cast
	Cast   *farcaster.Cast
	Action rules.Action
	// ExecuteOnProtocol allows handlers to call the Farcaster client
	ExecuteOnProtocol bool
	Now               time.Time
}

// Handler performs one action type
type Handler interface {
	Apply(ctx context.Context, ac ActionContext) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, ac ActionContext) error

func (f HandlerFunc) Apply(ctx context.Context, ac ActionContext) error {
	return f(ctx, ac)
}

// Definition describes an action to configuration tooling
type Definition struct {
	Type         rules.ActionType               `json:"type"`
	FriendlyName string                         `json:"friendlyName"`
	Description  string                         `json:"description"`
	Args         map[string]rules.ArgDefinition `json:"args,omitempty"`
	// validate checks the arguments beyond presence
	validate func(args rules.Args) error
}

type registered struct {
	def     Definition
	handler Handler
}

// Registry maps action types to handlers. It is filled once at process
// start and only read afterwards.
type Registry struct {
	handlers map[rules.ActionType]registered
}

// NewEmptyRegistry creates a registry without any handlers
func NewEmptyRegistry() *Registry {
	return &Registry{handlers: make(map[rules.ActionType]registered)}
}

// Register adds a handler. Registering the same type twice panics.
func (r *Registry) Register(def Definition, handler Handler) {
	if def.Type == "" {
		panic("actions: registering handler without a type")
	}
	if _, exists := r.handlers[def.Type]; exists {
		panic(fmt.Sprintf("actions: handler %q registered twice", def.Type))
	}
	r.handlers[def.Type] = registered{def: def, handler: handler}
}

// Lookup returns the handler registered for t
func (r *Registry) Lookup(t rules.ActionType) (Handler, error) {
	reg, ok := r.handlers[t]
	if !ok {
		return nil, &UnknownActionError{Type: t}
	}
	return reg.handler, nil
}

// Known reports whether a handler is registered for t
func (r *Registry) Known(t rules.ActionType) bool {
	_, ok := r.handlers[t]
	return ok
}

// Definitions lists every registered action sorted by type
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.handlers))
	for _, reg := range r.handlers {
		defs = append(defs, reg.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Type < defs[j].Type })
	return defs
}

// ValidateAction checks that an action is registered and carries the
// arguments its handler needs
func (r *Registry) ValidateAction(action rules.Action) error {
	reg, ok := r.handlers[action.Type]
	if !ok {
		return &UnknownActionError{Type: action.Type}
	}
	for key, arg := range reg.def.Args {
		if arg.Required {
			if v, present := action.Args[key]; !present || v == nil || v == "" {
				return &rules.ConfigurationError{Reason: fmt.Sprintf("action %s: missing argument %q", action.Type, key)}
			}
		}
	}
	if reg.def.validate != nil {
		if err := reg.def.validate(action.Args); err != nil {
			return &rules.ConfigurationError{Reason: fmt.Sprintf("action %s: %v", action.Type, err)}
		}
	}
	return nil
}
