package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dyluth/stash/internal/printer"
	"github.com/dyluth/stash/internal/relay"
	"github.com/dyluth/stash/internal/resolver"
	"github.com/dyluth/stash/internal/watch"
	"github.com/spf13/cobra"
)

var (
	historyLimit        int64
	historyOutputFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history [OPERATION]",
	Short: "Show recent save and load completions from the event relay",
	Long: `Show recent completions recorded by the event relay, oldest first.

With an OPERATION argument, print that single completion as JSON. The
argument may be a full operation id or a prefix of at least 6 characters,
as printed by 'stash watch'.

Examples:
  # Last 20 completions
  stash history

  # One completion by short id
  stash history 3f2a9c`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().Int64VarP(&historyLimit, "limit", "n", 20, "Number of completions to show")
	historyCmd.Flags().StringVarP(&historyOutputFormat, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	outputFormat := watch.OutputFormat(historyOutputFormat)
	if outputFormat != watch.OutputFormatDefault && outputFormat != watch.OutputFormatJSON {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", historyOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	r, err := connectRelay(ctx, cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	limit := historyLimit
	if len(args) == 1 {
		limit = relay.DefaultHistoryLength
	}
	history, err := r.History(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	if len(args) == 1 {
		m, err := resolver.ResolveOperation(history, args[0])
		if err != nil {
			var ambiguous *resolver.AmbiguousError
			if errors.As(err, &ambiguous) {
				return printer.Error("ambiguous operation id", resolver.FormatAmbiguousError(ambiguous), nil)
			}
			return printer.Error("operation not found", err.Error(), []string{"List recent operations:\n  stash history"})
		}

		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal completion: %w", err)
		}
		printer.Println(string(data))
		return nil
	}

	if len(history) == 0 {
		printer.Info("No completions recorded for profile '%s'\n", cfg.Storage.Profile)
		return nil
	}

	// History is newest first; print oldest first
	for i := len(history) - 1; i >= 0; i-- {
		if err := watch.WriteMessage(printer.Out(), outputFormat, &history[i]); err != nil {
			return err
		}
	}
	return nil
}
