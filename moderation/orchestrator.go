// Package moderation decides what happens to a cast posted in a moderated
// channel and records every decision in the moderation log.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/francisco-leal/ModBot/actions"
	"github.com/francisco-leal/ModBot/farcaster"
	"github.com/francisco-leal/ModBot/internal/logger"
	"github.com/francisco-leal/ModBot/rules"
)

// ExecutionMode selects whether decisions reach the outside world
type ExecutionMode = actions.ExecutionMode

const (
	ModeLive       = actions.ModeLive
	ModeSimulation = actions.ModeSimulation
)

// Options controls a single validation
type Options = actions.Options

// Orchestrator runs the bypass check, the exclusion and inclusion rule
// sets and the fallback for one user.
type Orchestrator struct {
	Logger   *slog.Logger
	engine   *rules.Engine
	executor *actions.Executor
	logs     *LogWriter
	sink     Sink
}

// NewOrchestrator wires the evaluator, the action executor and the log
// writer together. A nil sink discards action failures.
func NewOrchestrator(engine *rules.Engine, executor *actions.Executor, logs *LogWriter, sink Sink) *Orchestrator {
	if sink == nil {
		sink = NopSink{}
	}
	return &Orchestrator{
		Logger:   logger.Logger,
		engine:   engine,
		executor: executor,
		logs:     logs,
		sink:     sink,
	}
}

// ValidateCast decides what to do with user's cast in channel and returns
// one log entry per action taken, in order.
//
// Owners and bypass-listed users are curated without evaluation. Channels
// without an inclusion rule are hidden. A passing exclusion rule set wins
// over the inclusion rule set; when inclusion fails the cast is hidden.
//
// Predicate and configuration errors are returned without any entry. When a
// handler fails in live mode the entries logged before it are returned
// together with the *actions.ActionError.
func (o *Orchestrator) ValidateCast(ctx context.Context, channel *rules.ModeratedChannel, user *farcaster.User, opts Options) ([]*LogEntry, error) {
	if channel == nil {
		return nil, &ValidationError{Field: "channel"}
	}
	if user == nil {
		return nil, &ValidationError{Field: "user"}
	}

	start := time.Now()
	defer func() {
		validateDuration.WithLabelValues(opts.Mode.String()).Observe(time.Since(start).Seconds())
	}()

	if reason, ok := bypassReason(channel, user); ok {
		return o.record(ctx, channel, user, opts, actions.TypeLike, reason, nil, "bypass")
	}

	inclusion := channel.InclusionRuleSet
	if !inclusion.HasRules() {
		o.Logger.Debug("channel has no inclusion rules", "channel", channel.ID)
		reason := fmt.Sprintf("/%s is not configured to use ModBot", channel.ID)
		return o.record(ctx, channel, user, opts, actions.TypeHideQuietly, reason, nil, "not_configured")
	}

	cc := rules.CheckContext{Channel: channel, User: user, Cast: opts.Cast}

	if exclusion := channel.ExclusionRuleSet; exclusion.HasRules() {
		res, err := o.engine.Evaluate(ctx, exclusion.Rule, cc)
		if err != nil {
			return nil, err
		}
		if res.Passed {
			return o.apply(ctx, channel, user, opts, exclusion.Actions, res, "excluded")
		}
	}

	res, err := o.engine.Evaluate(ctx, inclusion.Rule, cc)
	if err != nil {
		return nil, err
	}
	if res.Passed {
		return o.apply(ctx, channel, user, opts, inclusion.Actions, res, "included")
	}
	return o.apply(ctx, channel, user, opts, []rules.Action{{Type: actions.TypeHideQuietly}}, res, "hidden")
}

func bypassReason(channel *rules.ModeratedChannel, user *farcaster.User) (string, bool) {
	switch {
	case channel.IsOwner(user):
		return fmt.Sprintf("@%s is the channel owner", user.Handle()), true
	case channel.IsExcluded(user):
		return fmt.Sprintf("@%s is in the bypass list.", user.Handle()), true
	}
	return "", false
}

// record logs a decision that runs no handler
func (o *Orchestrator) record(ctx context.Context, channel *rules.ModeratedChannel, user *farcaster.User, opts Options, action rules.ActionType, reason string, rule rules.Rule, outcome string) ([]*LogEntry, error) {
	entry, err := o.logs.Write(ctx, opts.Mode, channel.ID, action, reason, user, opts.Cast, rule)
	if err != nil {
		return nil, err
	}
	decisionCount.WithLabelValues(opts.Mode.String(), outcome).Inc()
	actionLoggedCount.WithLabelValues(opts.Mode.String(), string(action)).Inc()
	return []*LogEntry{entry}, nil
}

// apply executes acts strictly in order, logging each one after it
// succeeds. The first failure stops the run.
func (o *Orchestrator) apply(ctx context.Context, channel *rules.ModeratedChannel, user *farcaster.User, opts Options, acts []rules.Action, res rules.EvaluationResult, outcome string) ([]*LogEntry, error) {
	entries := make([]*LogEntry, 0, len(acts))
	for _, action := range acts {
		if err := o.executor.Execute(ctx, action, channel, user, opts); err != nil {
			var actionErr *actions.ActionError
			if errors.As(err, &actionErr) {
				o.reportFailure(channel, user, action, err)
			}
			return entries, err
		}

		entry, err := o.logs.Write(ctx, opts.Mode, channel.ID, action.Type, res.Explanation, user, opts.Cast, res.DecidingRule)
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
		actionLoggedCount.WithLabelValues(opts.Mode.String(), string(action.Type)).Inc()
	}

	decisionCount.WithLabelValues(opts.Mode.String(), outcome).Inc()
	return entries, nil
}

func (o *Orchestrator) reportFailure(channel *rules.ModeratedChannel, user *farcaster.User, action rules.Action, err error) {
	actionErrorCount.WithLabelValues(string(action.Type)).Inc()
	o.sink.CaptureMessage(fmt.Sprintf("Error in %s action", action.Type), map[string]any{
		"user":   user,
		"action": action,
	})
	o.Logger.Error("action failed", "channel", channel.ID, "fid", user.FID, "action", action.Type, "err", err)
}
