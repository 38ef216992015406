//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hubToken = "e2e-token"

var binaryPath string

func TestMain(m *testing.M) {
	// Build binary to temp dir.
	tmpDir, err := os.MkdirTemp("", "shiftplan-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(tmpDir)

	binaryPath = filepath.Join(tmpDir, "shiftplan")

	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = findModuleRoot()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building binary: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

// findModuleRoot walks up from the current dir to find go.mod.
func findModuleRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// e2e/ is one level below module root.
			return ".."
		}

		dir = parent
	}
}

// hubEnv is one running "serve" process plus the client configs that point
// at it.
type hubEnv struct {
	t        *testing.T
	dir      string
	addr     string
	pidPath  string
	hubCfg   string
	adminCfg string
	obsCfg   string
}

func freeAddr(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	require.NoError(t, l.Close())

	return addr
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func startHub(t *testing.T) *hubEnv {
	t.Helper()

	dir := t.TempDir()
	h := &hubEnv{
		t:        t,
		dir:      dir,
		addr:     freeAddr(t),
		pidPath:  filepath.Join(dir, "serve.pid"),
		hubCfg:   filepath.Join(dir, "hub.toml"),
		adminCfg: filepath.Join(dir, "admin.toml"),
		obsCfg:   filepath.Join(dir, "observer.toml"),
	}

	writeFile(t, h.hubCfg, fmt.Sprintf(`[store]
backend = "sqlite"
path = %q
token = %q

[server]
listen = %q

[session]
role = "admin"

[logging]
log_level = "info"
log_format = "json"
`, filepath.Join(dir, "plan.db"), hubToken, h.addr))

	client := func(role string) string {
		return fmt.Sprintf(`[store]
backend = "websocket"
url = "ws://%s/ws"
token = %q

[session]
role = %q
`, h.addr, hubToken, role)
	}

	writeFile(t, h.adminCfg, client("admin"))
	writeFile(t, h.obsCfg, client("observer"))

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, binaryPath, "--config", h.hubCfg, "serve", "--pid-file", h.pidPath)
	cmd.Env = cleanEnv(dir)

	var logs bytes.Buffer
	cmd.Stderr = &logs

	require.NoError(t, cmd.Start())

	t.Cleanup(func() {
		cancel()
		_ = cmd.Wait()

		if t.Failed() {
			t.Logf("hub log:\n%s", logs.String())
		}
	})

	h.waitHealthy()

	return h
}

// cleanEnv keeps SHIFTPLAN_* settings of the caller out of the processes.
func cleanEnv(dataDir string) []string {
	return []string{
		"HOME=" + dataDir,
		"XDG_DATA_HOME=" + dataDir,
		"XDG_CONFIG_HOME=" + dataDir,
		"PATH=" + os.Getenv("PATH"),
	}
}

func (h *hubEnv) waitHealthy() {
	h.t.Helper()

	url := "http://" + h.addr + "/healthz"

	require.Eventually(h.t, func() bool {
		resp, err := http.Get(url) //nolint:noctx // polling a local test server
		if err != nil {
			return false
		}

		resp.Body.Close()

		return resp.StatusCode == http.StatusOK
	}, 15*time.Second, 100*time.Millisecond, "hub did not become healthy")
}

// run executes the CLI with cfg and returns stdout, stderr and the error.
func (h *hubEnv) run(cfg string, args ...string) (string, string, error) {
	h.t.Helper()

	cmd := exec.Command(binaryPath, append([]string{"--config", cfg}, args...)...)
	cmd.Env = cleanEnv(h.dir)
	cmd.Dir = h.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stdout.String(), stderr.String(), err
}

func (h *hubEnv) ok(cfg string, args ...string) (string, string) {
	h.t.Helper()

	stdout, stderr, err := h.run(cfg, args...)
	if err != nil {
		h.t.Fatalf("CLI command %v failed: %v\nstdout: %s\nstderr: %s", args, err, stdout, stderr)
	}

	return stdout, stderr
}

const schedule = `SHIFT PLAN,,,,,,
10.01.2024,,,,,,
FLIGHT NO,STA,AIRLINE,STATIONS,BRIDGE,FLIGHT NO,STD
PC3001,16:30,PEGASUS,SAW-AYT,A1,PC3002,17:15
TK2410,18:05,THY/TK,IST-ESB,B4,,
`

type flightJSON struct {
	ID           string `json:"id"`
	FlightNumber string `json:"flightNumber"`
	Gate         string `json:"gate"`
	Staff        string `json:"staff"`
}

func (h *hubEnv) flights(cfg string) []flightJSON {
	h.t.Helper()

	stdout, _ := h.ok(cfg, "show", "--all", "--json")

	var out []flightJSON
	require.NoError(h.t, json.Unmarshal([]byte(stdout), &out))

	return out
}

func byNumber(t *testing.T, flights []flightJSON, number string) flightJSON {
	t.Helper()

	for _, f := range flights {
		if f.FlightNumber == number {
			return f
		}
	}

	t.Fatalf("flight %s not in %v", number, flights)

	return flightJSON{}
}

func TestE2E_AdminAndObserverThroughHub(t *testing.T) {
	h := startHub(t)

	csvPath := filepath.Join(h.dir, "schedule.csv")
	writeFile(t, csvPath, schedule)

	t.Run("admin imports", func(t *testing.T) {
		stdout, _ := h.ok(h.adminCfg, "import", csvPath)
		assert.Contains(t, stdout, "3 added")
	})

	t.Run("observer sees the plan", func(t *testing.T) {
		flights := h.flights(h.obsCfg)
		require.Len(t, flights, 3)
		assert.Equal(t, "A1", byNumber(t, flights, "PC3001").Gate)
	})

	t.Run("admin edits reach the observer", func(t *testing.T) {
		h.ok(h.adminCfg, "assign", "TK2410", "ahmet")
		h.ok(h.adminCfg, "gate", "PC3001", "c7")

		flights := h.flights(h.obsCfg)
		assert.Equal(t, "AHMET", byNumber(t, flights, "TK2410").Staff)
		assert.Equal(t, "C7", byNumber(t, flights, "PC3001").Gate)
		assert.Equal(t, "C7", byNumber(t, flights, "PC3002").Gate)
	})

	t.Run("observer cannot write", func(t *testing.T) {
		_, stderr, err := h.run(h.obsCfg, "assign", "TK2410", "mehmet")
		require.Error(t, err)
		assert.Contains(t, stderr, "permission denied")

		assert.Equal(t, "AHMET", byNumber(t, h.flights(h.adminCfg), "TK2410").Staff)
	})

	t.Run("reload reaches the hub", func(t *testing.T) {
		_, stderr := h.ok(h.hubCfg, "serve", "reload", "--pid-file", h.pidPath)
		assert.Contains(t, stderr, "Reload signal sent")

		// Still serving after the reload.
		h.waitHealthy()
		assert.Len(t, h.flights(h.obsCfg), 3)
	})
}

func TestE2E_WrongTokenRejected(t *testing.T) {
	h := startHub(t)

	bad := filepath.Join(h.dir, "bad.toml")
	writeFile(t, bad, fmt.Sprintf(`[store]
backend = "websocket"
url = "ws://%s/ws"
token = "wrong"
`, h.addr))

	_, stderr, err := h.run(bad, "show")
	require.Error(t, err)
	assert.Contains(t, stderr, "hub rejected token")
}
