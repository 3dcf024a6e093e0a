package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dyluth/stash/internal/orchestrator"
	"github.com/dyluth/stash/internal/slot"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = "stash.yml"

// Storage backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// StashConfig represents the top-level stash.yml configuration
type StashConfig struct {
	Version             string              `yaml:"version"`
	AppName             string              `yaml:"app_name,omitempty"`
	GameVersion         string              `yaml:"game_version,omitempty"`
	PersistAcrossScenes *bool               `yaml:"persist_across_scenes,omitempty"` // default true
	Storage             *StorageConfig      `yaml:"storage,omitempty"`
	Encryption          *EncryptionConfig   `yaml:"encryption,omitempty"`
	Orchestrator        *OrchestratorConfig `yaml:"orchestrator,omitempty"`
	Relay               *RelayConfig        `yaml:"relay,omitempty"`

	// dir is the directory of the loaded file; relative paths resolve against it.
	dir string
	// secret is the encryption secret taken from the environment, never written.
	secret string
}

// StorageConfig selects where slots are persisted
type StorageConfig struct {
	Backend        string `yaml:"backend,omitempty"`          // file or redis
	FileLocation   string `yaml:"file_location,omitempty"`    // persistent, data, cache, assets or custom
	CustomFilePath string `yaml:"custom_file_path,omitempty"` // required for file_location=custom
	SubFolder      *bool  `yaml:"sub_folder,omitempty"`       // default true
	SubFolderName  string `yaml:"sub_folder_name,omitempty"`  // default "saves"
	FileExtension  string `yaml:"file_extension,omitempty"`   // default "sav"
	RedisURL       string `yaml:"redis_url,omitempty"`        // required for backend=redis
	Profile        string `yaml:"profile,omitempty"`          // Redis key namespace, default "default"
}

// EncryptionConfig controls field-level encryption of save data
type EncryptionConfig struct {
	Enabled bool   `yaml:"enabled"`
	KeyFile string `yaml:"key_file,omitempty"`
}

// OrchestratorConfig specifies save orchestration behaviour
type OrchestratorConfig struct {
	Timeout      string `yaml:"timeout,omitempty"`       // Go duration, default 5s
	PartialSaves string `yaml:"partial_saves,omitempty"` // write or discard, default write
}

// RelayConfig configures the optional Redis event relay
type RelayConfig struct {
	RedisURL string `yaml:"redis_url,omitempty"` // empty disables the relay
}

// envOverrides are the values the environment may override.
type envOverrides struct {
	EncryptionKey  string `env:"STASH_ENCRYPTION_KEY"`
	RedisURL       string `env:"STASH_REDIS_URL"`
	CustomFilePath string `env:"STASH_CUSTOM_FILE_PATH"`
	Profile        string `env:"STASH_PROFILE"`
}

// Default returns the configuration written by `stash init`, before validation.
func Default() *StashConfig {
	subFolder := true
	persist := true
	return &StashConfig{
		Version:             "1.0",
		AppName:             "stash",
		GameVersion:         "0.1.0",
		PersistAcrossScenes: &persist,
		Storage: &StorageConfig{
			Backend:       BackendFile,
			FileLocation:  string(slot.LocationPersistent),
			SubFolder:     &subFolder,
			SubFolderName: "saves",
			FileExtension: "sav",
			Profile:       "default",
		},
		Encryption: &EncryptionConfig{},
		Orchestrator: &OrchestratorConfig{
			Timeout:      orchestrator.DefaultTimeout.String(),
			PartialSaves: string(orchestrator.PartialWrite),
		},
	}
}

// Validate performs strict validation on the configuration and applies defaults
func (c *StashConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.AppName == "" {
		c.AppName = "stash"
	}
	if c.PersistAcrossScenes == nil {
		persist := true
		c.PersistAcrossScenes = &persist
	}

	if c.Storage == nil {
		c.Storage = &StorageConfig{}
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}

	if c.Encryption == nil {
		c.Encryption = &EncryptionConfig{}
	}
	if c.Encryption.Enabled && c.Encryption.KeyFile == "" && c.secret == "" {
		return fmt.Errorf("encryption.enabled requires encryption.key_file or STASH_ENCRYPTION_KEY")
	}

	if c.Orchestrator == nil {
		c.Orchestrator = &OrchestratorConfig{}
	}
	if err := c.Orchestrator.Validate(); err != nil {
		return err
	}

	if c.Relay == nil {
		c.Relay = &RelayConfig{}
	}

	return nil
}

// Validate checks the storage section and applies its defaults
func (s *StorageConfig) Validate() error {
	if s.Backend == "" {
		s.Backend = BackendFile
	}
	if s.Profile == "" {
		s.Profile = "default"
	}

	switch s.Backend {
	case BackendFile:
		if s.FileLocation == "" {
			s.FileLocation = string(slot.LocationPersistent)
		}
		if err := slot.Location(s.FileLocation).Validate(); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		if slot.Location(s.FileLocation) == slot.LocationCustom && s.CustomFilePath == "" {
			return fmt.Errorf("storage.custom_file_path is required when file_location is custom")
		}
		if s.SubFolder == nil {
			subFolder := true
			s.SubFolder = &subFolder
		}
		if s.SubFolderName == "" {
			s.SubFolderName = "saves"
		}
		if s.FileExtension == "" {
			s.FileExtension = "sav"
		}
	case BackendRedis:
		if s.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required when backend is redis")
		}
	default:
		return fmt.Errorf("invalid storage.backend: %s (must be 'file' or 'redis')", s.Backend)
	}

	return nil
}

// Validate checks the orchestrator section and applies its defaults
func (o *OrchestratorConfig) Validate() error {
	if o.Timeout == "" {
		o.Timeout = orchestrator.DefaultTimeout.String()
	}
	d, err := time.ParseDuration(o.Timeout)
	if err != nil {
		return fmt.Errorf("invalid orchestrator.timeout: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("orchestrator.timeout must be > 0, got %s", o.Timeout)
	}

	if o.PartialSaves == "" {
		o.PartialSaves = string(orchestrator.PartialWrite)
	}
	if err := orchestrator.PartialSavePolicy(o.PartialSaves).Validate(); err != nil {
		return fmt.Errorf("orchestrator.partial_saves: %w", err)
	}
	return nil
}

// TimeoutDuration returns the validated timeout.
func (o *OrchestratorConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(o.Timeout)
	if err != nil || d <= 0 {
		return orchestrator.DefaultTimeout
	}
	return d
}

// ApplyEnv overlays STASH_* environment variables onto the configuration.
// A Redis URL from the environment applies to both the Redis backend and the relay.
func (c *StashConfig) ApplyEnv() error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	if c.Storage == nil {
		c.Storage = &StorageConfig{}
	}
	if c.Relay == nil {
		c.Relay = &RelayConfig{}
	}

	if overrides.EncryptionKey != "" {
		c.secret = overrides.EncryptionKey
	}
	if overrides.RedisURL != "" {
		c.Storage.RedisURL = overrides.RedisURL
		c.Relay.RedisURL = overrides.RedisURL
	}
	if overrides.CustomFilePath != "" {
		c.Storage.CustomFilePath = overrides.CustomFilePath
	}
	if overrides.Profile != "" {
		c.Storage.Profile = overrides.Profile
	}
	return nil
}

// Load reads stash.yml from the specified path, applies environment
// overrides and validates the result
func Load(path string) (*StashConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config StashConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	config.dir = filepath.Dir(path)

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Write serializes the configuration to path. It refuses to overwrite an
// existing file.
func (c *StashConfig) Write(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// resolvePath makes p relative to the config file's directory.
func (c *StashConfig) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.dir == "" {
		return p
	}
	return filepath.Join(c.dir, p)
}
