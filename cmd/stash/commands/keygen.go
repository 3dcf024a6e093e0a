package commands

import (
	"github.com/dyluth/stash/internal/printer"
	"github.com/dyluth/stash/pkg/cipher"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen PATH",
	Short: "Generate a new encryption key file",
	Long: `Generate a new random encryption key file with owner-only permissions.

Reference it from stash.yml with encryption.key_file, or export its content
as STASH_ENCRYPTION_KEY. An existing file is never replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, args []string) error {
	if _, err := cipher.WriteKeyFile(args[0]); err != nil {
		return printer.Error("failed to create key file", err.Error(), nil)
	}
	printer.Success("Created %s\n", args[0])
	return nil
}
