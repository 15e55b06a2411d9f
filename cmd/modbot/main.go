// Command modbot runs moderation configurations offline: it validates a
// channel document and replays casts against it without touching any store
// or the Farcaster network.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/francisco-leal/ModBot/channels"
	"github.com/francisco-leal/ModBot/farcaster"
	"github.com/francisco-leal/ModBot/internal/app"
	"github.com/francisco-leal/ModBot/internal/config"
	"github.com/francisco-leal/ModBot/rules"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	channelFlag := &cli.PathFlag{
		Name:     "channel",
		Usage:    "channel configuration JSON file",
		Required: true,
	}

	return &cli.App{
		Name:   "modbot",
		Usage:  "offline tooling for ModBot channel configurations",
		Writer: out,
		Commands: []*cli.Command{
			{
				Name:   "validate",
				Usage:  "check a channel configuration against the rule and action registries",
				Flags:  []cli.Flag{channelFlag},
				Action: runValidate,
			},
			{
				Name:  "simulate",
				Usage: "replay casts against a channel configuration and summarise the decisions",
				Flags: []cli.Flag{
					channelFlag,
					&cli.PathFlag{
						Name:     "casts",
						Usage:    "JSON array of casts, each with its author",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "print the full report as JSON",
					},
				},
				Action: runSimulate,
			},
			{
				Name:   "rules",
				Usage:  "list the available rules",
				Action: runListRules,
			},
		},
	}
}

// offlineApp wires everything in memory. Network-backed rules still reach
// the Farcaster API configured through MODBOT_ variables.
func offlineApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.DatabaseURL = ""
	cfg.RedisURL = ""
	cfg.SentryDSN = ""
	cfg.ExecuteOnProtocol = false
	return app.New(ctx, cfg)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func loadChannel(a *app.App, path string) (*rules.ModeratedChannel, error) {
	var channel rules.ModeratedChannel
	if err := readJSON(path, &channel); err != nil {
		return nil, err
	}
	if err := channels.NewValidator(a.Predicates, a.Actions).Validate(&channel); err != nil {
		return nil, err
	}
	return &channel, nil
}

func runValidate(cctx *cli.Context) error {
	a, err := offlineApp(cctx.Context)
	if err != nil {
		return err
	}
	defer a.Close()

	channel, err := loadChannel(a, cctx.Path("channel"))
	if err != nil {
		return err
	}
	fmt.Fprintf(cctx.App.Writer, "/%s is valid\n", channel.ID)
	return nil
}

func runSimulate(cctx *cli.Context) error {
	a, err := offlineApp(cctx.Context)
	if err != nil {
		return err
	}
	defer a.Close()

	channel, err := loadChannel(a, cctx.Path("channel"))
	if err != nil {
		return err
	}
	var casts []*farcaster.Cast
	if err := readJSON(cctx.Path("casts"), &casts); err != nil {
		return err
	}

	report, err := a.Processor.Simulate(cctx.Context, channel, casts)
	if err != nil {
		return err
	}

	if cctx.Bool("json") {
		enc := json.NewEncoder(cctx.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	w := tabwriter.NewWriter(cctx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CAST\tACTION\tREASON")
	for _, cs := range report.Casts {
		if cs.Skipped {
			fmt.Fprintf(w, "%s\t-\tnot targeted\n", cs.CastHash)
			continue
		}
		for _, entry := range cs.Proposed {
			fmt.Fprintf(w, "%s\t%s\t%s\n", cs.CastHash, entry.Action, entry.Reason)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	types := make([]string, 0, len(report.Proposed))
	for action := range report.Proposed {
		types = append(types, string(action))
	}
	sort.Strings(types)
	fmt.Fprintln(cctx.App.Writer)
	for _, action := range types {
		fmt.Fprintf(cctx.App.Writer, "%s: %d\n", action, report.Proposed[rules.ActionType(action)])
	}
	return nil
}

func runListRules(cctx *cli.Context) error {
	a, err := offlineApp(cctx.Context)
	if err != nil {
		return err
	}
	defer a.Close()

	w := tabwriter.NewWriter(cctx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tINVERTABLE\tDESCRIPTION")
	for _, def := range a.Predicates.Definitions() {
		fmt.Fprintf(w, "%s\t%t\t%s\n", def.Name, def.Invertable, def.Description)
	}
	return w.Flush()
}
