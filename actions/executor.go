package actions

import (
	"context"
	"log/slog"
	"time"

	"github.com/francisco-leal/ModBot/farcaster"
	"github.com/francisco-leal/ModBot/internal/logger"
	"github.com/francisco-leal/ModBot/rules"
)

// Options controls a single execution
type Options struct {
	Mode              ExecutionMode
	ExecuteOnProtocol bool
	Cast              *farcaster.Cast
}

// Executor runs actions through the registry
type Executor struct {
	Logger   *slog.Logger
	registry *Registry
	now      func() time.Time
}

// NewExecutor creates an executor resolving handlers through registry
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		Logger:   logger.Logger,
		registry: registry,
		now:      time.Now,
	}
}

// Registry returns the handler registry
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute applies one action. Unknown types fail with *UnknownActionError
// in every mode; handler failures are wrapped in *ActionError. In simulation
// mode the handler is resolved but never applied.
func (e *Executor) Execute(ctx context.Context, action rules.Action, channel *rules.ModeratedChannel, user *farcaster.User, opts Options) error {
	handler, err := e.registry.Lookup(action.Type)
	if err != nil {
		return err
	}
	if opts.Mode == ModeSimulation {
		return nil
	}

	err = handler.Apply(ctx, ActionContext{
		Channel:           channel,
		User:              user,
		Cast:              opts.Cast,
		Action:            action,
		ExecuteOnProtocol: opts.ExecuteOnProtocol,
		Now:               e.now(),
	})
	if err != nil {
		return &ActionError{Type: action.Type, Err: err}
	}

	if e.Logger != nil {
		e.Logger.Debug("action applied", "action", action.Type, "channel", channel.ID, "fid", user.FID, "protocol", opts.ExecuteOnProtocol)
	}
	return nil
}
