package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/shiftplan/internal/config"
)

// without drops key from a JSON object.
func without(t *testing.T, doc []byte, key string) string {
	t.Helper()

	var m map[string]any
	require.NoError(t, json.Unmarshal(doc, &m))
	delete(m, key)

	out, err := json.Marshal(m)
	require.NoError(t, err)

	return string(out)
}

// cliEnv is an isolated CLI environment: a file-backed store and a config
// path that does not exist, so every run starts from the defaults.
type cliEnv struct {
	t          *testing.T
	storeDir   string
	configPath string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	dir := t.TempDir()

	for _, key := range []string{
		config.EnvConfig, config.EnvRole, config.EnvStore,
		config.EnvStorePath, config.EnvStoreURL, config.EnvToken,
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))

	return &cliEnv{
		t:          t,
		storeDir:   filepath.Join(dir, "store"),
		configPath: filepath.Join(dir, "config.toml"),
	}
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

// run executes the CLI as an admin on the env's store, unless args set
// --role themselves.
func (e *cliEnv) run(stdin string, args ...string) cliResult {
	e.t.Helper()

	base := []string{
		"--config", e.configPath,
		"--store", "file",
		"--store-path", e.storeDir,
	}

	if !containsFlag(args, "--role") {
		base = append(base, "--role", "admin")
	}

	cmd := newRootCmd()

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(base, args...))

	err := cmd.ExecuteContext(context.Background())

	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// ok runs the CLI and fails the test on error.
func (e *cliEnv) ok(args ...string) cliResult {
	e.t.Helper()

	res := e.run("", args...)
	require.NoError(e.t, res.err, "stderr: %s", res.stderr)

	return res
}

func containsFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag || strings.HasPrefix(a, flag+"=") {
			return true
		}
	}

	return false
}

// writeSchedule writes a CSV schedule export into the test's temp dir.
func writeSchedule(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "schedule.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

const testSchedule = `SHIFT PLAN,,,,,,
10.01.2024,,,,,,
FLIGHT NO,STA,AIRLINE,STATIONS,BRIDGE,FLIGHT NO,STD
PC3001,16:30,PEGASUS,SAW-AYT,A1,PC3002,17:15
TK2410,18:05,THY/TK,IST-ESB,B4,,
`
