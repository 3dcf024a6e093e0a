package commands

import (
	"context"
	"fmt"

	"github.com/dyluth/stash/internal/printer"
	"github.com/dyluth/stash/internal/slot"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete SLOT",
	Short: "Delete a slot and its backup",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var restoreCmd = &cobra.Command{
	Use:   "restore SLOT",
	Short: "Swap a slot with its backup",
	Long: `Swap a slot with its backup.

A save made with --force keeps the replaced save as the slot's backup.
Restoring swaps the two, so running restore twice undoes it.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(restoreCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
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

	if err := s.orch.Delete(ctx, slotNum); err != nil {
		if slot.IsNotFound(err) {
			return printer.Error(fmt.Sprintf("slot %d is empty", slotNum), "Nothing to delete.", []string{"List slots:\n  stash slots"})
		}
		return printer.Error(fmt.Sprintf("failed to delete slot %d", slotNum), err.Error(), nil)
	}

	printer.Success("Deleted slot %d\n", slotNum)
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
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

	if err := s.orch.RestoreBackup(ctx, slotNum); err != nil {
		if slot.IsNotFound(err) {
			return printer.Error(fmt.Sprintf("slot %d has no backup", slotNum), "Backups are created when a save replaces an existing one.", nil)
		}
		return printer.Error(fmt.Sprintf("failed to restore slot %d", slotNum), err.Error(), nil)
	}

	printer.Success("Restored backup of slot %d\n", slotNum)
	return nil
}
