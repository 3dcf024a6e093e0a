package config

import (
	"fmt"

	"github.com/dyluth/stash/internal/orchestrator"
	"github.com/dyluth/stash/internal/slot"
	"github.com/dyluth/stash/pkg/cipher"
	"github.com/dyluth/stash/pkg/codec"
	"github.com/redis/go-redis/v9"
)

// OpenStore builds the slot store described by the storage section. The
// returned close function releases any connection the store holds.
func (c *StashConfig) OpenStore() (slot.Store, func() error, error) {
	s := c.Storage
	switch s.Backend {
	case BackendRedis:
		opts, err := redis.ParseURL(s.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid storage.redis_url: %w", err)
		}
		store, err := slot.NewRedisStore(opts, s.Profile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		return store, store.Close, nil

	default:
		subFolder := ""
		if s.SubFolder == nil || *s.SubFolder {
			subFolder = s.SubFolderName
		}
		r, err := slot.NewResolver(slot.Location(s.FileLocation), c.resolvePath(s.CustomFilePath), c.AppName, subFolder, s.FileExtension)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve save directory: %w", err)
		}
		return slot.NewFileStore(r), func() error { return nil }, nil
	}
}

// Codec returns the value codec for the encryption section. A secret from
// STASH_ENCRYPTION_KEY takes precedence over the key file.
func (c *StashConfig) Codec() (*codec.Codec, error) {
	if c.Encryption == nil || !c.Encryption.Enabled {
		return codec.New(nil), nil
	}

	var (
		key cipher.Key
		err error
	)
	if c.secret != "" {
		key, err = cipher.KeyFromSecret(c.secret)
	} else {
		key, err = cipher.LoadKeyFile(c.resolvePath(c.Encryption.KeyFile))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load encryption key: %w", err)
	}

	aes, err := cipher.NewAES(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return codec.New(aes), nil
}

// OrchestratorOptions returns orchestrator options using the given codec.
func (c *StashConfig) OrchestratorOptions(cdc *codec.Codec) orchestrator.Options {
	return orchestrator.Options{
		Codec:               cdc,
		Timeout:             c.Orchestrator.TimeoutDuration(),
		GameVersion:         c.GameVersion,
		PartialSaves:        orchestrator.PartialSavePolicy(c.Orchestrator.PartialSaves),
		PersistAcrossScenes: c.PersistAcrossScenes == nil || *c.PersistAcrossScenes,
	}
}

// RelayOptions returns Redis options for the event relay, or nil when the
// relay is disabled.
func (c *StashConfig) RelayOptions() (*redis.Options, error) {
	if c.Relay == nil || c.Relay.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(c.Relay.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay.redis_url: %w", err)
	}
	return opts, nil
}
