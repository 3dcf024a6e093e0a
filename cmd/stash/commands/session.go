package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/dyluth/stash/internal/config"
	"github.com/dyluth/stash/internal/orchestrator"
	"github.com/dyluth/stash/internal/printer"
	"github.com/dyluth/stash/internal/relay"
	"github.com/dyluth/stash/internal/slot"
	"github.com/dyluth/stash/pkg/bus"
	"github.com/dyluth/stash/pkg/codec"
)

// session holds everything a command needs to work on the configured slots.
type session struct {
	cfg   *config.StashConfig
	store slot.Store
	codec *codec.Codec
	bus   *bus.Bus
	orch  *orchestrator.Orchestrator
	relay *relay.Relay

	closeStore func() error
}

// loadConfig reads the config file named by --config.
func loadConfig() (*config.StashConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, printer.Error(
				"no stash.yml found",
				fmt.Sprintf("Could not read %s.", configPath),
				[]string{"Create one first:\n  stash init", "Point at an existing file:\n  stash --config path/to/stash.yml"},
			)
		}
		return nil, printer.Error("invalid configuration", err.Error(), nil)
	}
	return cfg, nil
}

// openSession loads the configuration, opens the slot store and builds an
// orchestrator on a fresh bus. When a relay is configured it mirrors every
// completion to Redis.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	cdc, err := cfg.Codec()
	if err != nil {
		return nil, printer.Error(
			"encryption key unavailable",
			err.Error(),
			[]string{"Generate a key:\n  stash keygen stash.key", "Or set STASH_ENCRYPTION_KEY"},
		)
	}

	store, closeStore, err := cfg.OpenStore()
	if err != nil {
		return nil, printer.Error("failed to open slot store", err.Error(), nil)
	}

	s := &session{cfg: cfg, store: store, codec: cdc, bus: bus.New(), closeStore: closeStore}

	s.orch, err = orchestrator.New(s.bus, store, cfg.OrchestratorOptions(cdc))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	relayOpts, err := cfg.RelayOptions()
	if err != nil {
		s.Close()
		return nil, printer.Error("invalid relay configuration", err.Error(), nil)
	}
	if relayOpts != nil {
		r, err := relay.New(relayOpts, cfg.Storage.Profile)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create relay: %w", err)
		}
		if err := r.Ping(ctx); err != nil {
			printer.Warning("event relay unreachable, completions will not be mirrored: %v\n", err)
			r.Close()
		} else {
			r.Attach(s.bus)
			s.relay = r
		}
	}

	return s, nil
}

// where names the store for headings.
func (s *session) where() string {
	if fs, ok := s.store.(*slot.FileStore); ok {
		return fs.Resolver().Dir()
	}
	return fmt.Sprintf("redis profile '%s'", s.cfg.Storage.Profile)
}

// Close releases the orchestrator, the relay and the store.
func (s *session) Close() {
	if s.orch != nil {
		s.orch.Close()
	}
	if s.relay != nil {
		s.relay.Close()
	}
	if s.closeStore != nil {
		s.closeStore()
	}
}

// connectRelay opens the configured event relay for reading.
func connectRelay(ctx context.Context, cfg *config.StashConfig) (*relay.Relay, error) {
	redisOpts, err := cfg.RelayOptions()
	if err != nil {
		return nil, printer.Error("invalid relay configuration", err.Error(), nil)
	}
	if redisOpts == nil {
		return nil, printer.Error(
			"event relay not configured",
			"Completions are only recorded when a Redis relay is configured.",
			[]string{"Set relay.redis_url in stash.yml", "Or export STASH_REDIS_URL=redis://localhost:6379/0"},
		)
	}

	r, err := relay.New(redisOpts, cfg.Storage.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to create relay: %w", err)
	}

	if err := r.Ping(ctx); err != nil {
		r.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", redisOpts.Addr),
			map[string]string{"Profile": cfg.Storage.Profile},
			[]string{"Check the server is running and relay.redis_url is correct"},
		)
	}
	return r, nil
}

// parseSlot parses a SLOT argument.
func parseSlot(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return 0, printer.Error(
			fmt.Sprintf("invalid slot '%s'", arg),
			"Slots are numbered from 0.",
			nil,
		)
	}
	return n, nil
}
