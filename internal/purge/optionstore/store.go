// Package optionstore reads and writes host options: provider credentials,
// the configured zone name and the cached zone id.
package optionstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/edgecomet/cfpurge/internal/common/configtypes"
)

// Store is the host's key-value option storage.
type Store interface {
	// Get returns the option value and whether it exists.
	Get(ctx context.Context, name string) (string, bool, error)
	// Add writes the option only when it is absent. Returns true if written.
	Add(ctx context.Context, name, value string) (bool, error)
	// Delete removes the option. Deleting a missing option is not an error.
	Delete(ctx context.Context, name string) error
	Close() error
}

// New builds the store selected by cfg.Backend and layers cfg.Overrides on top.
func New(ctx context.Context, cfg configtypes.OptionStoreConfig, logger *zap.Logger) (Store, error) {
	var (
		base Store
		err  error
	)

	switch cfg.Backend {
	case "", configtypes.OptionBackendMemory:
		base = NewMemoryStore(cfg.Values)
	case configtypes.OptionBackendRedis:
		base, err = NewRedisStore(cfg.Redis, logger)
	case configtypes.OptionBackendMySQL:
		base, err = NewMySQLStore(ctx, cfg.MySQL, logger)
	default:
		return nil, fmt.Errorf("unknown option store backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s option store: %w", cfg.Backend, err)
	}

	logger.Debug("Option store ready",
		zap.String("backend", backendName(cfg.Backend)),
		zap.Int("overrides", len(cfg.Overrides)))

	if len(cfg.Overrides) == 0 {
		return base, nil
	}
	return WithOverrides(base, cfg.Overrides), nil
}

func backendName(backend string) string {
	if backend == "" {
		return configtypes.OptionBackendMemory
	}
	return backend
}
