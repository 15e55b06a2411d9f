package delivery

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/francisco-leal/ModBot/farcaster"
	"github.com/francisco-leal/ModBot/moderation"
	"github.com/francisco-leal/ModBot/rules"
)

// CastSimulation pairs the decisions a proposed configuration would take on
// a cast with those already logged for it
type CastSimulation struct {
	CastHash string                 `json:"castHash"`
	Skipped  bool                   `json:"skipped,omitempty"`
	Proposed []*moderation.LogEntry `json:"proposed"`
	Existing []*moderation.LogEntry `json:"existing"`
}

// SimulationReport summarises a simulation by action type
type SimulationReport struct {
	ChannelID string                   `json:"channelId"`
	Proposed  map[rules.ActionType]int `json:"proposed"`
	Existing  map[rules.ActionType]int `json:"existing"`
	Casts     []CastSimulation         `json:"casts"`
}

// Simulate replays casts against the proposed channel configuration without
// side effects. Casts the inclusion target does not cover are reported as
// skipped. Any evaluation error aborts the whole run.
func (p *Processor) Simulate(ctx context.Context, proposed *rules.ModeratedChannel, casts []*farcaster.Cast) (*SimulationReport, error) {
	if proposed == nil {
		return nil, &moderation.ValidationError{Field: "channel"}
	}

	for _, cast := range casts {
		if cast == nil {
			return nil, &moderation.ValidationError{Field: "cast"}
		}
	}

	results := make([]CastSimulation, len(casts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.SimulationConcurrency)
	for i, cast := range casts {
		results[i].CastHash = cast.Hash
		if !applicable(proposed, cast) {
			results[i].Skipped = true
			continue
		}

		g.Go(func() error {
			author := cast.Author
			logs, err := p.orchestrator.ValidateCast(gctx, proposed, &author, moderation.Options{
				Mode: moderation.ModeSimulation,
				Cast: cast,
			})
			if err != nil {
				return fmt.Errorf("simulating cast %s: %w", cast.Hash, err)
			}
			results[i].Proposed = logs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &SimulationReport{
		ChannelID: proposed.ID,
		Proposed:  map[rules.ActionType]int{},
		Existing:  map[rules.ActionType]int{},
		Casts:     results,
	}

	existing, err := p.existingLogs(ctx, proposed.ID, casts)
	if err != nil {
		return nil, err
	}
	for i := range report.Casts {
		cs := &report.Casts[i]
		cs.Existing = existing[cs.CastHash]
		for _, entry := range cs.Proposed {
			report.Proposed[entry.Action]++
		}
		for _, entry := range cs.Existing {
			report.Existing[entry.Action]++
		}
	}

	p.Logger.Info("simulation finished", "channel", proposed.ID, "casts", len(casts), "proposed", report.Proposed, "existing", report.Existing)
	return report, nil
}

func (p *Processor) existingLogs(ctx context.Context, channelID string, casts []*farcaster.Cast) (map[string][]*moderation.LogEntry, error) {
	byCast := make(map[string][]*moderation.LogEntry)
	if p.logs == nil || len(casts) == 0 {
		return byCast, nil
	}

	hashes := make([]string, 0, len(casts))
	for _, cast := range casts {
		hashes = append(hashes, cast.Hash)
	}
	entries, err := p.logs.ListByCasts(ctx, channelID, hashes)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing decisions: %w", err)
	}
	for _, entry := range entries {
		byCast[entry.CastHash] = append(byCast[entry.CastHash], entry)
	}
	return byCast, nil
}
