package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	testRegistryID = strings.Repeat("r", 43)
	testOwner      = strings.Repeat("o", 43)
	testModule     = strings.Repeat("m", 43)
)

// setupCLIEnv configures the registry identity through ACLREG_* variables
// and returns a database path in a temp dir.
func setupCLIEnv(t *testing.T) string {
	t.Helper()
	t.Setenv("ACLREG_ID", testRegistryID)
	t.Setenv("ACLREG_OWNER", testOwner)
	t.Setenv("ACLREG_PATCH_TARGET", "")
	t.Setenv("ACLREG_DATABASE", "")
	t.Setenv("ACLREG_ADDR", "")
	t.Setenv("ACLREG_LOG_LEVEL", "")
	return filepath.Join(t.TempDir(), "aclreg.db")
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// mustExecute runs the root command and fails the test on error.
func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	require.NoError(t, err, "aclreg %v\n%s", args, out)
	return out
}

// decodeResponse parses a JSON CLI response and re-decodes its data into v.
func decodeResponse(t *testing.T, out string, v any) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	if v != nil {
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, v))
	}
	return resp
}

// seedRegistry registers entity A owned by O and controlled by C, and
// catalogs two versions.
func seedRegistry(t *testing.T, db string) {
	t.Helper()
	mustExecute(t, "send", "Register", "--db", db, "--from", "SPAWNER", "--tag", "Process-Id=A")
	mustExecute(t, "send", "State-Notice", "--db", db, "--from", "A",
		"--data", `{"Owner":"O","Controllers":["C"]}`)
	mustExecute(t, "send", "Add-Version", "--db", db, "--from", testOwner,
		"--tag", "Version=1.10.0", "--tag", "Module-Id="+testModule)
	mustExecute(t, "send", "Add-Version", "--db", db, "--from", testOwner,
		"--tag", "Version=1.2.0", "--tag", "Module-Id="+testModule, "--tag", "Notes=second")
}

// writeConfig writes a CUE configuration file. The registry identity still
// comes from the environment set by setupCLIEnv.
func writeConfig(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aclreg.cue")
	require.NoError(t, os.WriteFile(path, []byte(src+"\n"), 0644))
	return path
}
