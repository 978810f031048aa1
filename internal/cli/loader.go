package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/aclreg/internal/config"
	"github.com/roach88/aclreg/internal/registry"
	"github.com/roach88/aclreg/internal/store"
)

// loadConfig reads the --config file and ACLREG_* overrides. A non-empty db
// replaces the configured database path.
func loadConfig(opts *RootOptions, db string) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if db != "" {
		cfg.Database = db
	}
	return cfg, nil
}

// openStore opens the database. When mustExist is set, a missing file is a
// command error instead of a fresh database.
func openStore(path string, mustExist bool) (*store.Store, error) {
	if mustExist {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
		}
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// loadRegistry restores the persisted registry state from st.
func loadRegistry(ctx context.Context, st *store.Store, opts registry.Options) (*registry.Registry, error) {
	state, err := st.LoadState(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load registry state", err)
	}
	reg := registry.New(opts)
	if err := reg.Restore(state); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to restore registry state", err)
	}
	return reg, nil
}

// commandContext returns the command's context or Background.
func commandContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
