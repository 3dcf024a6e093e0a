package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyluth/stash/internal/inspect"
	"github.com/dyluth/stash/internal/printer"
	"github.com/dyluth/stash/pkg/savepkg"
	"github.com/spf13/cobra"
)

var inspectFull bool

var inspectCmd = &cobra.Command{
	Use:   "inspect SLOT",
	Short: "Show the decoded save package of a slot",
	Long: `Decode the save package in SLOT and print it as pretty-printed JSON:
metadata, checksum validity, one entry per system and any decode warnings.

System blobs are shown as a short preview unless --full is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectFull, "full", false, "Include complete system blobs")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	slotNum, err := parseSlot(args[0])
	if err != nil {
		return err
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	err = inspect.InspectSlot(ctx, s.store, s.codec, slotNum, inspectFull, printer.Out())
	if err == nil {
		return nil
	}

	var notFound *inspect.SlotNotFoundError
	switch {
	case errors.As(err, &notFound):
		suggestions := []string{"List slots:\n  stash slots"}
		if notFound.HasBackup {
			suggestions = append(suggestions, fmt.Sprintf("Restore the backup:\n  stash restore %d", slotNum))
		}
		return printer.Error(err.Error(), "The slot holds no save.", suggestions)
	case errors.Is(err, savepkg.ErrCorruptPackage):
		return printer.Error(
			fmt.Sprintf("slot %d cannot be decoded", slotNum),
			err.Error(),
			[]string{"Check encryption settings match the ones used when saving", fmt.Sprintf("Restore the backup:\n  stash restore %d", slotNum)},
		)
	default:
		return fmt.Errorf("failed to inspect slot: %w", err)
	}
}
