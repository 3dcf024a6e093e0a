package commands

import (
	"fmt"
	"path/filepath"

	"github.com/dyluth/stash/internal/config"
	"github.com/dyluth/stash/internal/printer"
	"github.com/dyluth/stash/internal/slot"
	"github.com/dyluth/stash/pkg/cipher"
	"github.com/spf13/cobra"
)

const keyFileName = "stash.key"

var (
	initObfuscate bool
	initEncrypt   bool
	initLocation  string
	initPath      string
	initBackend   string
	initRedisURL  string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a stash.yml with default settings",
	Long: `Create a stash.yml with default settings.

Creates:
  • stash.yml - Project configuration file
  • stash.key - Encryption key (only with --encrypt)

Existing files are never overwritten.

Examples:
  # Saves under the per-user config directory
  stash init

  # Saves in ./saves with an unguessable file extension
  stash init --location custom --path ./saves --obfuscate-extension

  # Encrypted saves in Redis
  stash init --backend redis --redis-url redis://localhost:6379/0 --encrypt`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initObfuscate, "obfuscate-extension", false, "Use a random 8 character file extension")
	initCmd.Flags().BoolVar(&initEncrypt, "encrypt", false, "Enable field encryption and generate stash.key")
	initCmd.Flags().StringVar(&initLocation, "location", string(slot.LocationPersistent), "File location: persistent, data, cache, assets or custom")
	initCmd.Flags().StringVar(&initPath, "path", "", "Save directory for --location custom")
	initCmd.Flags().StringVar(&initBackend, "backend", config.BackendFile, "Storage backend: file or redis")
	initCmd.Flags().StringVar(&initRedisURL, "redis-url", "", "Redis URL for --backend redis")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	cfg.Storage.Backend = initBackend
	cfg.Storage.FileLocation = initLocation
	cfg.Storage.CustomFilePath = initPath
	cfg.Storage.RedisURL = initRedisURL

	if initObfuscate {
		ext, err := slot.RandomExtension(8)
		if err != nil {
			return fmt.Errorf("failed to generate file extension: %w", err)
		}
		cfg.Storage.FileExtension = ext
	}

	keyPath := filepath.Join(filepath.Dir(configPath), keyFileName)
	if initEncrypt {
		cfg.Encryption.Enabled = true
		cfg.Encryption.KeyFile = keyFileName
	}

	// Validate a copy so defaults do not end up in the written file
	check := *cfg
	storage := *cfg.Storage
	check.Storage = &storage
	if err := check.Validate(); err != nil {
		return printer.Error("invalid init options", err.Error(), []string{"See: stash init --help"})
	}

	if err := cfg.Write(configPath); err != nil {
		return printer.Error(
			"initialization failed",
			err.Error(),
			[]string{"Remove the existing file or pass a different --config path"},
		)
	}
	printer.Success("Created %s\n", configPath)

	if initEncrypt {
		if _, err := cipher.WriteKeyFile(keyPath); err != nil {
			return printer.Error(
				"failed to create encryption key",
				err.Error(),
				[]string{fmt.Sprintf("Create one manually:\n  stash keygen %s", keyPath)},
			)
		}
		printer.Success("Created %s\n", keyPath)
		printer.Warning("Keep %s secret and backed up: encrypted saves cannot be read without it\n", keyPath)
	}

	return nil
}
