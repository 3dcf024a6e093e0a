package commands

import (
	"context"
	"fmt"

	"github.com/dyluth/stash/internal/inspect"
	"github.com/dyluth/stash/internal/printer"
	"github.com/dyluth/stash/internal/slot"
	"github.com/dyluth/stash/internal/timespec"
	"github.com/spf13/cobra"
)

var (
	slotsOutputFormat string
	slotsSince        string
	slotsUntil        string
	slotsStatus       string
)

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "List save slots with filtering",
	Long: `List every save slot that holds a save or a backup.

Output Formats:
  default - Human-readable table
  jsonl   - Line-delimited JSON, one slot per line

Time Filters:
  --since  - Show slots saved after this time
  --until  - Show slots saved before this time

Examples:
  # Every slot
  stash slots

  # Slots saved in the last two hours, as JSONL for jq
  stash slots --since=2h --output=jsonl | jq '.slot'

  # Slots that only have a backup left
  stash slots --status=backup-only`,
	Args: cobra.NoArgs,
	RunE: runSlots,
}

func init() {
	slotsCmd.Flags().StringVarP(&slotsOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	slotsCmd.Flags().StringVar(&slotsSince, "since", "", "Show slots saved after time (duration, date or RFC3339)")
	slotsCmd.Flags().StringVar(&slotsUntil, "until", "", "Show slots saved before time (duration, date or RFC3339)")
	slotsCmd.Flags().StringVar(&slotsStatus, "status", "", "Filter by status: saved or backup-only")
	rootCmd.AddCommand(slotsCmd)
}

func runSlots(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var outputFormat inspect.OutputFormat
	switch slotsOutputFormat {
	case "default":
		outputFormat = inspect.OutputFormatDefault
	case "jsonl":
		outputFormat = inspect.OutputFormatJSONL
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", slotsOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	status := slot.Status(slotsStatus)
	switch status {
	case "", slot.StatusSaved, slot.StatusBackupOnly:
	default:
		return printer.Error(
			"invalid status filter",
			fmt.Sprintf("Unknown status: %s", slotsStatus),
			[]string{"Valid statuses: saved, backup-only"},
		)
	}

	sinceMS, untilMS, err := timespec.ParseRange(slotsSince, slotsUntil)
	if err != nil {
		return printer.Error(
			"invalid time filter",
			err.Error(),
			[]string{"Use duration format like '1h30m', a date like '2025-10-29' or RFC3339 like '2025-10-29T13:00:00Z'"},
		)
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	filterCriteria := &inspect.FilterCriteria{
		SinceTimestampMs: sinceMS,
		UntilTimestampMs: untilMS,
		Status:           status,
	}

	if err := inspect.ListSlots(ctx, s.store, s.where(), outputFormat, filterCriteria, printer.Out()); err != nil {
		return fmt.Errorf("failed to list slots: %w", err)
	}
	return nil
}
