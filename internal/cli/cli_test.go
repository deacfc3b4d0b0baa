package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/api-diagnostics/internal/domain/index"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/logrecord"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/project"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/config"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/api-diagnostics/internal/server"
)

const flaskApp = `from flask import Flask

app = Flask(__name__)

@app.route('/api/users/<int:uid>')
def user(uid):
    return {'error': 'User not found'}, 404
`

func run(t *testing.T, dir string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), append([]string{"-C", dir, "--log-level", "error"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func flaskProject(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	entry := filepath.Join(dir, "app.py")
	require.NoError(t, os.WriteFile(entry, []byte(flaskApp), 0o644))
	return dir, entry
}

func appendRecords(t *testing.T, dir string) {
	t.Helper()
	m, err := project.NewManager(dir, config.Default())
	require.NoError(t, err)
	store, err := m.OpenStore(false)
	require.NoError(t, err)
	defer store.Close()

	at := time.Now().Add(-time.Minute)
	for _, r := range []logrecord.Record{
		logrecord.New(logrecord.Info, "abc12345", "GET", "/api/users/7", 0).At(at),
		logrecord.New(logrecord.Error, "abc12345", "GET", "/api/users/7", 404).At(at.Add(time.Millisecond)).WithError("User not found"),
		logrecord.New(logrecord.Error, "def67890", "POST", "/api/orders", 500).At(at.Add(2 * time.Millisecond)).WithError("database is locked"),
	} {
		_, err := store.Append(r)
		require.NoError(t, err)
	}
}

func TestNoFrameworksIsNotAnError(t *testing.T) {
	code, out, _ := run(t, t.TempDir(), "init", "--auto")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "No supported frameworks detected")
}

func TestCommandsBeforeInit(t *testing.T) {
	code, _, errOut := run(t, t.TempDir(), "start")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "not initialized")
}

func TestFullWorkflow(t *testing.T) {
	dir, entry := flaskProject(t)

	code, out, _ := run(t, dir, "init")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Detected backend project (flask)")
	assert.Contains(t, out, "--auto")
	assert.Equal(t, flaskApp, readFile(t, entry))

	code, out, _ = run(t, dir, "init", "--auto")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Automatic integration complete")
	assert.NotEqual(t, flaskApp, readFile(t, entry))

	code, out, _ = run(t, dir, "status")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "STOPPED")

	code, out, _ = run(t, dir, "start")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "monitoring started")

	code, out, _ = run(t, dir, "status")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "RUNNING")

	appendRecords(t, dir)

	code, out, _ = run(t, dir, "search", "abc12345")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Found 2 log entries for correlation ID: abc12345")
	assert.Contains(t, out, "User not found")

	code, out, _ = run(t, dir, "search", "nope")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "No log entries found for correlation ID: nope")

	code, out, _ = run(t, dir, "search", "abc12345", "--json")
	require.Equal(t, 0, code)
	var records []logrecord.Record
	require.NoError(t, sonic.ConfigStd.Unmarshal([]byte(out), &records))
	assert.Len(t, records, 2)

	code, out, _ = run(t, dir, "errors", "4xx")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "[abc12345] GET /api/users/7 404 User not found")
	assert.NotContains(t, out, "def67890")

	code, out, _ = run(t, dir, "recent", "--within", "1h")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "def67890")

	code, out, _ = run(t, dir, "query", `method == "POST"`)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "[def67890] POST /api/orders 500 database is locked")

	code, _, errOut := run(t, dir, "errors", "3xx")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "3xx")

	code, out, _ = run(t, dir, "stop")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "monitoring stopped")

	code, out, _ = run(t, dir, "clean")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Integration removed successfully")
	assert.Equal(t, flaskApp, readFile(t, entry))
}

func TestRestoreCommand(t *testing.T) {
	dir, entry := flaskProject(t)
	code, _, _ := run(t, dir, "init", "--auto")
	require.Equal(t, 0, code)

	code, out, _ := run(t, dir, "restore", entry)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Restored app.py")
	assert.Equal(t, flaskApp, readFile(t, entry))
}

func TestSearchAgainstServer(t *testing.T) {
	dir, _ := flaskProject(t)
	code, _, _ := run(t, dir, "init", "--auto")
	require.Equal(t, 0, code)
	appendRecords(t, dir)

	m, err := project.NewManager(dir, config.Default())
	require.NoError(t, err)
	store, err := m.OpenStore(true)
	require.NoError(t, err)
	defer store.Close()
	ix := index.New(store)
	require.NoError(t, ix.Rebuild(context.Background()))

	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	srv := httptest.NewServer(server.New(cfg, store, ix, monitoring.NewMetrics(), nil).Handler())
	defer srv.Close()

	// A directory that was never initialized: results must come from the server
	code, out, _ := run(t, t.TempDir(), "search", "abc12345", "--server", srv.URL)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Found 2 log entries")
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
