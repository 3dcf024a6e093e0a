package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/stash/internal/printer"
	"github.com/dyluth/stash/internal/watch"
	"github.com/spf13/cobra"
)

var (
	watchOutputFormat string
	watchHistory      int64
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream save and load completions from the event relay",
	Long: `Stream save and load completions as they happen.

Every stash process with relay.redis_url (or STASH_REDIS_URL) configured
publishes its completions to Redis. watch subscribes to the same profile and
prints them until interrupted.

Output Formats:
  default - Human-readable output with timestamps and emojis
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Follow completions
  stash watch

  # Show the last 20 completions first
  stash watch --history 20

  # Export events as JSON
  stash watch --output=json > events.jsonl`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().Int64Var(&watchHistory, "history", 0, "Print this many recent completions before streaming")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	var outputFormat watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		outputFormat = watch.OutputFormatDefault
	case "json":
		outputFormat = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := connectRelay(ctx, cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	sub, err := r.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Close()

	if watchHistory > 0 {
		history, err := r.History(ctx, watchHistory)
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}
		// History is newest first; print oldest first
		for i := len(history) - 1; i >= 0; i-- {
			if err := watch.WriteMessage(printer.Out(), outputFormat, &history[i]); err != nil {
				return err
			}
		}
	}

	if outputFormat == watch.OutputFormatDefault {
		printer.Step("Watching profile '%s' (Ctrl+C to stop)\n", cfg.Storage.Profile)
	}
	return watch.StreamEvents(ctx, sub, outputFormat, printer.Out(), os.Stderr)
}
