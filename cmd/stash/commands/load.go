package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dyluth/stash/internal/printer"
	"github.com/dyluth/stash/pkg/bus"
	"github.com/dyluth/stash/pkg/events"
	"github.com/spf13/cobra"
)

var (
	loadExpect []string
	loadOutput string
)

var loadCmd = &cobra.Command{
	Use:   "load SLOT",
	Short: "Load a slot and print what each system would receive",
	Long: `Load a slot through the orchestrator and print the delivered name→blob map.

Pass --expect NAME for every system the game would have registered; the load
then warns about expected systems with no saved data.

Output Formats:
  default - One "NAME: BLOB" line per system, followed by warnings
  json    - The delivered map as a JSON object`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().StringArrayVar(&loadExpect, "expect", nil, "System expected to receive data (repeatable)")
	loadCmd.Flags().StringVarP(&loadOutput, "output", "o", "default", "Output format: default or json")
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if loadOutput != "default" && loadOutput != "json" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", loadOutput),
			[]string{"Valid formats: default, json"},
		)
	}

	slotNum, err := parseSlot(args[0])
	if err != nil {
		return err
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, name := range loadExpect {
		if err := s.orch.Register(name); err != nil {
			return printer.Error("invalid --expect flag", err.Error(), nil)
		}
	}

	var (
		delivered map[string]string
		complete  events.LoadComplete
	)
	unsubDelivery := bus.Subscribe(s.bus, func(d events.LoadDelivery) { delivered = d.SystemData })
	defer unsubDelivery()
	unsubComplete := bus.Subscribe(s.bus, func(e events.LoadComplete) { complete = e })
	defer unsubComplete()

	// Load is synchronous: delivery and completion are published before it returns
	if _, err := s.orch.StartLoad(ctx, slotNum); err != nil {
		suggestions := []string{"List slots:\n  stash slots"}
		return printer.ErrorWithContext(
			fmt.Sprintf("load of slot %d failed", slotNum),
			err.Error(),
			map[string]string{"Operation": complete.OperationID},
			suggestions,
		)
	}

	if loadOutput == "json" {
		data, err := json.MarshalIndent(delivered, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal systems: %w", err)
		}
		printer.Println(string(data))
		return nil
	}

	printer.Success("Loaded %d systems from slot %d (saved %s)\n",
		complete.SystemsLoaded, slotNum, complete.SaveTime.Local().Format("2006-01-02 15:04:05"))

	names := make([]string, 0, len(delivered))
	for name := range delivered {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		printer.Info("  %s: %s\n", name, delivered[name])
	}

	for _, w := range complete.Warnings {
		printer.Warning("%s\n", w)
	}
	return nil
}
