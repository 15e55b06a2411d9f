// Package delivery feeds casts into the moderation orchestrator: live casts
// arriving from the Farcaster webhook, and batches of recent casts replayed
// against a proposed configuration.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/francisco-leal/ModBot/channels"
	"github.com/francisco-leal/ModBot/farcaster"
	"github.com/francisco-leal/ModBot/internal/logger"
	"github.com/francisco-leal/ModBot/moderation"
	"github.com/francisco-leal/ModBot/rules"
)

// ChannelSource resolves the moderated channel a cast was posted in
type ChannelSource interface {
	GetByURL(ctx context.Context, url string) (*rules.ModeratedChannel, error)
}

// Status describes what happened to a delivered cast
type Status string

const (
	StatusModerated      Status = "moderated"
	StatusUnknownChannel Status = "unknown_channel"
	StatusInactive       Status = "inactive"
	StatusOverUsage      Status = "over_usage"
	StatusNotApplicable  Status = "not_applicable"
)

// Result is the outcome of processing one cast
type Result struct {
	ChannelID string
	Status    Status
	Logs      []*moderation.LogEntry
}

// Config tunes the processor
type Config struct {
	// ExecuteOnProtocol lets handlers act on the Farcaster network
	ExecuteOnProtocol bool
	// Timeout bounds one validation, zero means no bound
	Timeout time.Duration
	// UsageBuffer is the fraction of the plan allowance tolerated past the limit
	UsageBuffer float64
	// SimulationConcurrency bounds how many casts a simulation evaluates at once
	SimulationConcurrency int
}

// DefaultConfig returns the settings used when none are configured
func DefaultConfig() Config {
	return Config{
		Timeout:               30 * time.Second,
		UsageBuffer:           0.1,
		SimulationConcurrency: 4,
	}
}

// Processor routes casts to their channel and runs the orchestrator on them
type Processor struct {
	Logger       *slog.Logger
	channels     ChannelSource
	usage        channels.UsageStore
	orchestrator *moderation.Orchestrator
	logs         moderation.LogStore
	config       Config
	now          func() time.Time
}

// NewProcessor creates a processor. logs is read when comparing a
// simulation with the decisions already taken.
func NewProcessor(source ChannelSource, usage channels.UsageStore, orchestrator *moderation.Orchestrator, logs moderation.LogStore, config Config) *Processor {
	if config.SimulationConcurrency <= 0 {
		config.SimulationConcurrency = 1
	}
	return &Processor{
		Logger:       logger.Logger,
		channels:     source,
		usage:        usage,
		orchestrator: orchestrator,
		logs:         logs,
		config:       config,
		now:          time.Now,
	}
}

// ProcessCast moderates a cast delivered by the webhook. Casts outside any
// moderated channel, in inactive channels, from owners over their monthly
// allowance or not matching the inclusion target are skipped without a log.
func (p *Processor) ProcessCast(ctx context.Context, cast *farcaster.Cast) (*Result, error) {
	if cast == nil {
		return nil, &moderation.ValidationError{Field: "cast"}
	}

	channel, err := p.resolve(ctx, cast)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		return &Result{Status: StatusUnknownChannel}, nil
	}

	result := &Result{ChannelID: channel.ID}
	if !channel.Active {
		result.Status = StatusInactive
		return result, nil
	}

	monthYear := channels.MonthYear(p.now())
	if p.usage != nil {
		total, err := p.usage.OwnerTotal(ctx, channel.OwnerID, monthYear)
		if err != nil {
			return nil, fmt.Errorf("failed to read usage: %w", err)
		}
		if channels.IsOverUsage(channel.Plan, total, p.config.UsageBuffer) {
			p.Logger.Warn("owner over usage, skipping cast", "channel", channel.ID, "owner", channel.OwnerID, "plan", channel.Plan, "casts", total)
			result.Status = StatusOverUsage
			return result, nil
		}
	}

	if !applicable(channel, cast) {
		result.Status = StatusNotApplicable
		return result, nil
	}

	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	author := cast.Author
	logs, err := p.orchestrator.ValidateCast(ctx, channel, &author, moderation.Options{
		Mode:              moderation.ModeLive,
		ExecuteOnProtocol: p.config.ExecuteOnProtocol,
		Cast:              cast,
	})
	result.Logs = logs
	if err == nil || len(logs) > 0 {
		result.Status = StatusModerated
		if p.usage != nil {
			// Usage errors must not hide the moderation outcome
			if uerr := p.usage.Increment(context.WithoutCancel(ctx), channel.ID, channel.OwnerID, monthYear, 1); uerr != nil {
				p.Logger.Error("failed to record usage", "channel", channel.ID, "err", uerr)
			}
		}
	}
	if err != nil {
		return result, fmt.Errorf("failed to moderate cast %s in %s: %w", cast.Hash, channel.ID, err)
	}

	p.Logger.Debug("cast moderated", "channel", channel.ID, "cast", cast.Hash, "fid", author.FID, "actions", len(logs))
	return result, nil
}

// resolve finds the channel by the cast's root parent url, then its parent
// url. A cast that matches neither yields nil.
func (p *Processor) resolve(ctx context.Context, cast *farcaster.Cast) (*rules.ModeratedChannel, error) {
	for _, url := range []string{cast.RootParentURL, cast.ParentURL} {
		if url == "" {
			continue
		}
		channel, err := p.channels.GetByURL(ctx, url)
		if errors.Is(err, channels.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve channel for %s: %w", url, err)
		}
		return channel, nil
	}
	return nil, nil
}

// applicable reports whether the inclusion rule set targets the cast's kind.
// Channels without an inclusion rule set take every cast so the orchestrator
// can log that they are not configured.
func applicable(channel *rules.ModeratedChannel, cast *farcaster.Cast) bool {
	if channel.InclusionRuleSet == nil {
		return true
	}
	return rules.IsTargetApplicable(channel.InclusionRuleSet.Target, cast.IsReply())
}
