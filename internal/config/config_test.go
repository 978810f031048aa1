package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aclreg/internal/registry"
)

var (
	testID    = strings.Repeat("i", 43)
	testOwner = strings.Repeat("o", 43)
)

func minimal() string {
	return `registry: {
	id:    "` + testID + `"
	owner: "` + testOwner + `"
}
`
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse("aclreg.cue", []byte(minimal()), Env{})
	require.NoError(t, err)

	assert.Equal(t, testID, cfg.Registry.ID)
	assert.Equal(t, testOwner, cfg.Registry.Owner)
	assert.Equal(t, "semver", cfg.Registry.VersionScheme)
	assert.Equal(t, 1000, cfg.Registry.MaxBatchSize)
	assert.Empty(t, cfg.Registry.PatchTarget)
	assert.Equal(t, "aclreg.db", cfg.Database)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestParse_Explicit(t *testing.T) {
	src := minimal() + `
registry: version_scheme: "integer"
registry: max_batch_size: 50
registry: patch_target: "` + strings.Repeat("p", 43) + `"
database: "/var/lib/aclreg/reg.db"
server: addr: "127.0.0.1:9000"
log: level: "debug"
log: format: "json"
`
	cfg, err := Parse("aclreg.cue", []byte(src), Env{})
	require.NoError(t, err)

	opts := cfg.RegistryOptions()
	assert.Equal(t, registry.SchemeInteger, opts.VersionScheme)
	assert.Equal(t, 50, opts.MaxBatchSize)
	assert.Equal(t, strings.Repeat("p", 43), opts.PatchTarget)
	assert.Equal(t, testOwner, opts.Owner)
	assert.Equal(t, "/var/lib/aclreg/reg.db", cfg.Database)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestParse_EnvOverrides(t *testing.T) {
	envOwner := strings.Repeat("e", 43)
	cfg, err := Parse("", nil, Env{
		ID:       testID,
		Owner:    envOwner,
		Database: "env.db",
		Addr:     ":1",
		LogLevel: "warn",
	})
	require.NoError(t, err)

	assert.Equal(t, envOwner, cfg.Registry.Owner)
	assert.Equal(t, "env.db", cfg.Database)
	assert.Equal(t, ":1", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestParse_EnvConflictsWithFile(t *testing.T) {
	// Concrete file values and env overrides unify; disagreement is an error.
	_, err := Parse("aclreg.cue", []byte(minimal()), Env{Owner: strings.Repeat("x", 43)})
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing owner":  `registry: id: "` + testID + `"`,
		"short owner":    `registry: { id: "` + testID + `", owner: "abc" }`,
		"bad scheme":     minimal() + `registry: version_scheme: "calver"`,
		"zero batch":     minimal() + `registry: max_batch_size: 0`,
		"unknown field":  minimal() + `extra: true`,
		"bad log level":  minimal() + `log: level: "trace"`,
		"syntax error":   `registry: {`,
		"empty database": minimal() + `database: ""`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("aclreg.cue", []byte(src), Env{})
			require.Error(t, err)
			var cerr *ConfigError
			assert.ErrorAs(t, err, &cerr)
		})
	}
}

func TestLoad_FromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aclreg.cue")
	require.NoError(t, os.WriteFile(path, []byte(minimal()), 0o644))
	t.Setenv("ACLREG_DATABASE", "from-env.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Database)
	assert.Equal(t, testOwner, cfg.Registry.Owner)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.cue"))
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSlogLevel(t *testing.T) {
	for level, want := range map[string]string{"debug": "DEBUG", "info": "INFO", "warn": "WARN", "error": "ERROR"} {
		cfg := &Config{Log: LogConfig{Level: level}}
		assert.Equal(t, want, cfg.SlogLevel().String())
	}
}
