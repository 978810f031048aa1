// Package config loads the registry's runtime configuration.
//
// A CUE file is unified with the embedded schema (schema.cue), which supplies
// defaults and rejects unknown or malformed fields. ACLREG_* environment
// variables are filled in before validation so they are checked against the
// same schema.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"github.com/kelseyhightower/envconfig"

	"github.com/roach88/aclreg/internal/registry"
)

//go:embed schema.cue
var schemaSource string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ACLREG"

// Config is the validated configuration.
type Config struct {
	Registry RegistryConfig `json:"registry"`
	Database string         `json:"database"`
	Server   ServerConfig   `json:"server"`
	Log      LogConfig      `json:"log"`
}

// RegistryConfig holds the registry identity and limits.
type RegistryConfig struct {
	ID            string `json:"id"`
	Owner         string `json:"owner"`
	VersionScheme string `json:"version_scheme"`
	MaxBatchSize  int    `json:"max_batch_size"`
	PatchTarget   string `json:"patch_target,omitempty"`
}

// ServerConfig holds HTTP ingress settings.
type ServerConfig struct {
	Addr string `json:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Env lists the supported environment overrides. Empty values are ignored.
type Env struct {
	ID          string `envconfig:"ID"`
	Owner       string `envconfig:"OWNER"`
	PatchTarget string `envconfig:"PATCH_TARGET"`
	Database    string `envconfig:"DATABASE"`
	Addr        string `envconfig:"ADDR"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
}

// ConfigError reports a configuration problem with its CUE position when
// one is known.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "config: " + e.Err.Error()
	}
	return fmt.Sprintf("config %s: %s", e.Path, e.Err.Error())
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load reads path (which may be empty) and applies environment overrides.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, &ConfigError{Path: path, Err: err}
		}
	}
	env, err := ReadEnv()
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	cfg, err := Parse(path, data, env)
	if err != nil {
		return nil, err
	}
	slog.Debug("configuration loaded",
		"path", path,
		"database", cfg.Database,
		"addr", cfg.Server.Addr,
		"version_scheme", cfg.Registry.VersionScheme,
	)
	return cfg, nil
}

// ReadEnv reads ACLREG_* overrides from the process environment.
func ReadEnv() (Env, error) {
	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return Env{}, fmt.Errorf("environment: %w", err)
	}
	return env, nil
}

// Parse validates CUE source data (named filename in errors) against the
// schema after filling in env.
func Parse(filename string, data []byte, env Env) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("schema: %w", err)}
	}
	v := schema.LookupPath(cue.ParsePath("#Config"))

	if len(data) > 0 {
		file := ctx.CompileBytes(data, cue.Filename(filename))
		if err := file.Err(); err != nil {
			return nil, &ConfigError{Path: filename, Err: flatten(err)}
		}
		v = v.Unify(file)
	}

	for _, o := range []struct {
		path  string
		value string
	}{
		{"registry.id", env.ID},
		{"registry.owner", env.Owner},
		{"registry.patch_target", env.PatchTarget},
		{"database", env.Database},
		{"server.addr", env.Addr},
		{"log.level", env.LogLevel},
	} {
		if o.value != "" {
			v = v.FillPath(cue.ParsePath(o.path), o.value)
		}
	}

	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, &ConfigError{Path: filename, Err: flatten(err)}
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, &ConfigError{Path: filename, Err: flatten(err)}
	}
	return &cfg, nil
}

// flatten joins CUE's error list into one error with positions.
func flatten(err error) error {
	return fmt.Errorf("%s", errors.Details(err, nil))
}

// RegistryOptions converts the configuration into registry options.
func (c *Config) RegistryOptions() registry.Options {
	return registry.Options{
		Identity: registry.Identity{
			ID:    c.Registry.ID,
			Owner: c.Registry.Owner,
		},
		VersionScheme: registry.VersionScheme(c.Registry.VersionScheme),
		MaxBatchSize:  c.Registry.MaxBatchSize,
		PatchTarget:   c.Registry.PatchTarget,
	}
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
