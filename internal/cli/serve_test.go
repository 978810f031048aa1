package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeRequiresRegistryIdentity(t *testing.T) {
	setupCLIEnv(t)
	t.Setenv("ACLREG_ID", "")
	t.Setenv("ACLREG_OWNER", "")

	_, err := execute(t, "serve", "--db", filepath.Join(t.TempDir(), "x.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestServeMissingConfigFile(t *testing.T) {
	setupCLIEnv(t)

	_, err := execute(t, "--config", "/nonexistent/aclreg.cue", "serve")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestServeRejectsArgs(t *testing.T) {
	_, err := execute(t, "serve", "extra")
	require.Error(t, err)
}

func TestServeUnopenableDatabase(t *testing.T) {
	setupCLIEnv(t)
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	_, err := execute(t, "serve", "--db", filepath.Join(blocker, "reg.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
