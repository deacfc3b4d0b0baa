package project

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/api-diagnostics/internal/domain/backup"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/detect"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/inject"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/logrecord"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/templates"
)

const flaskApp = `import os
from flask import Flask

app = Flask(__name__)

@app.route('/api/users/<int:uid>')
def user(uid):
    return {'error': 'User not found'}, 404
`

const reactEntry = `import React from 'react';
import ReactDOM from 'react-dom/client';
import App from './App';

ReactDOM.createRoot(document.getElementById('root')).render(<App />);
`

func write(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func newManager(t *testing.T, root string, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(root, nil, opts...)
	require.NoError(t, err)
	return m
}

func TestFlaskLifecycle(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	entry := write(t, root, "app.py", flaskApp)
	write(t, root, "requirements.txt", "flask==3.0.0\n")

	m := newManager(t, root)

	// Dry run reports the plan and touches nothing
	plan, err := m.Init(ctx, InitOptions{})
	require.NoError(t, err)
	assert.False(t, plan.Applied)
	require.Len(t, plan.Planned, 1)
	assert.Equal(t, "app.py", plan.Planned[0].Path)
	assert.Equal(t, templates.MiddlewareMarker, plan.Planned[0].Marker)
	assert.NoDirExists(t, m.Paths().Dir)

	res, err := m.Init(ctx, InitOptions{Apply: true})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, inject.Inserted, res.Planned[0].Action)
	assert.Equal(t, detect.BackendProject, res.Info.Type)

	instrumented := read(t, entry)
	assert.Contains(t, instrumented, "# START apidiag:"+templates.MiddlewareMarker)
	assert.Contains(t, instrumented, "_APIDiagnostics(app)")
	assert.FileExists(t, filepath.Join(m.Paths().GeneratedDir(), templates.MiddlewareModule))

	_, err = m.Init(ctx, InitOptions{Apply: true})
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	st, err := m.Start()
	require.NoError(t, err)
	assert.True(t, st.Monitoring)
	assert.FileExists(t, m.Paths().EnabledPath())

	store, err := m.OpenStore(false)
	require.NoError(t, err)
	_, err = store.Append(logrecord.New(logrecord.Error, "abc12345", "GET", "/api/users/7", 404).WithError("User not found"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	status, err := m.Status()
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, 1, status.Log.Records)
	assert.Equal(t, 1, status.Snapshots)

	_, err = m.Stop()
	require.NoError(t, err)
	assert.NoFileExists(t, m.Paths().EnabledPath())

	status, err = m.Status()
	require.NoError(t, err)
	assert.False(t, status.Running)

	cleaned, err := m.Clean(ctx, CleanOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py"}, cleaned.Removed)
	assert.True(t, cleaned.StateRemoved)
	assert.Equal(t, flaskApp, read(t, entry))
	assert.NoDirExists(t, m.Paths().Dir)
}

func TestInitFullstack(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	write(t, root, "frontend/package.json", `{"dependencies": {"react": "^18.2.0"}}`)
	js := write(t, root, "frontend/src/index.js", reactEntry)
	py := write(t, root, "backend/app.py", flaskApp)

	m := newManager(t, root)
	res, err := m.Init(ctx, InitOptions{Apply: true})
	require.NoError(t, err)
	assert.Equal(t, detect.FullstackProject, res.Info.Type)
	require.Len(t, res.Planned, 2)
	assert.Equal(t, "frontend/src/index.js", res.Planned[0].Path)
	assert.Equal(t, "backend/app.py", res.Planned[1].Path)

	assert.Contains(t, read(t, js), "// START apidiag:"+templates.InterceptorMarker)
	assert.Contains(t, read(t, py), "# START apidiag:"+templates.MiddlewareMarker)

	st, err := m.Load()
	require.NoError(t, err)
	assert.Len(t, st.Injections, 2)
	assert.False(t, st.Monitoring)

	_, err = m.Clean(ctx, CleanOptions{})
	require.NoError(t, err)
	assert.Equal(t, reactEntry, read(t, js))
	assert.Equal(t, flaskApp, read(t, py))
}

func TestInitNoFrameworks(t *testing.T) {
	root := t.TempDir()
	write(t, root, "README.md", "# nothing here\n")

	m := newManager(t, root)
	_, err := m.Init(context.Background(), InitOptions{Apply: true})
	assert.ErrorIs(t, err, ErrNoFrameworks)
	assert.NoDirExists(t, m.Paths().Dir)
}

func TestInitSkipsFindingWithoutEntry(t *testing.T) {
	root := t.TempDir()
	write(t, root, "package.json", `{"dependencies": {"react": "^18.2.0"}}`)

	m := newManager(t, root)
	res, err := m.Init(context.Background(), InitOptions{Apply: true})
	assert.ErrorIs(t, err, ErrNothingToInject)
	require.Len(t, res.Skipped, 1)
	assert.Contains(t, res.Skipped[0], "react")
	assert.NoDirExists(t, m.Paths().Dir)
}

// fixedBackend reports a Flask app in a file the constructor anchor cannot match
type fixedBackend struct{ entry string }

func (fixedBackend) Name() detect.Framework { return detect.Flask }
func (fixedBackend) Kind() detect.Kind      { return detect.Backend }

func (f fixedBackend) Detect(context.Context, string) (*detect.Finding, error) {
	return &detect.Finding{Framework: detect.Flask, Kind: detect.Backend, Entry: f.entry, AppVar: "app"}, nil
}

func TestInitRollsBackOnFailure(t *testing.T) {
	root := t.TempDir()
	write(t, root, "package.json", `{"dependencies": {"react": "^18.2.0"}}`)
	js := write(t, root, "src/index.js", reactEntry)
	py := write(t, root, "server.py", "import flask\n\nprint('no app here')\n")

	registry := detect.NewRegistry(nil, detect.NewReact(), fixedBackend{entry: py}, detect.NewFlask())
	m := newManager(t, root, WithRegistry(registry))

	_, err := m.Init(context.Background(), InitOptions{Apply: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, inject.ErrAnchorNotFound)

	assert.Equal(t, reactEntry, read(t, js))
	assert.Equal(t, "import flask\n\nprint('no app here')\n", read(t, py))
	assert.NoDirExists(t, m.Paths().Dir)
}

func TestInitKeepsSnapshotsWhenRollbackFails(t *testing.T) {
	root := t.TempDir()
	entry := write(t, root, "app.py", flaskApp)

	var m *Manager
	sabotaged := false
	// Once the block is in, make both the state record and the rollback
	// unwritable: a non-empty directory cannot be replaced by a rename.
	clock := func() time.Time {
		if !sabotaged {
			if data, err := os.ReadFile(entry); err == nil && strings.Contains(string(data), "START apidiag:"+templates.MiddlewareMarker) {
				sabotaged = true
				require.NoError(t, os.Remove(entry))
				write(t, root, "app.py/keep", "")
				write(t, m.Paths().Dir, "config.yaml/keep", "")
			}
		}
		return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	}
	m = newManager(t, root, WithClock(clock))

	_, err := m.Init(context.Background(), InitOptions{Apply: true})
	require.Error(t, err)
	require.True(t, sabotaged)
	assert.ErrorIs(t, err, backup.ErrRestoreFailed)
	assert.ErrorContains(t, err, m.Paths().BackupsDir())

	assert.DirExists(t, m.Paths().BackupsDir())
	snap, err := m.Backups().Lookup(entry)
	require.NoError(t, err)
	assert.Equal(t, flaskApp, string(snap.Content))
}

func TestForceReinitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	entry := write(t, root, "app.py", flaskApp)

	m := newManager(t, root)
	_, err := m.Init(ctx, InitOptions{Apply: true})
	require.NoError(t, err)
	once := read(t, entry)

	res, err := m.Init(ctx, InitOptions{Apply: true, Force: true})
	require.NoError(t, err)
	assert.Equal(t, inject.Unchanged, res.Planned[0].Action)
	assert.Equal(t, once, read(t, entry))

	st, err := m.Load()
	require.NoError(t, err)
	assert.Len(t, st.Injections, 1)
}

func TestCommandsRequireInit(t *testing.T) {
	m := newManager(t, t.TempDir())

	_, err := m.Start()
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = m.Status()
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = m.Clean(context.Background(), CleanOptions{})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestCleanToleratesManuallyRemovedBlock(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	entry := write(t, root, "app.py", flaskApp)

	m := newManager(t, root)
	_, err := m.Init(ctx, InitOptions{Apply: true})
	require.NoError(t, err)

	// The user strips the block by hand
	require.NoError(t, os.WriteFile(entry, []byte(flaskApp), 0o644))

	res, err := m.Clean(ctx, CleanOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py"}, res.Missing)
	assert.True(t, res.StateRemoved)
}

func TestCleanRestore(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	entry := write(t, root, "app.py", flaskApp)

	m := newManager(t, root)
	_, err := m.Init(ctx, InitOptions{Apply: true})
	require.NoError(t, err)

	edited := read(t, entry) + "\n# local change\n"
	require.NoError(t, os.WriteFile(entry, []byte(edited), 0o644))

	res, err := m.Clean(ctx, CleanOptions{Restore: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py"}, res.Restored)
	assert.Equal(t, flaskApp, read(t, entry))
}

func TestOpenIndex(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	write(t, root, "app.py", flaskApp)

	m := newManager(t, root)
	_, err := m.Init(ctx, InitOptions{Apply: true})
	require.NoError(t, err)

	store, err := m.OpenStore(false)
	require.NoError(t, err)
	defer store.Close()
	for _, id := range []string{"aaa", "bbb", "aaa"} {
		_, err := store.Append(logrecord.New(logrecord.Info, id, "GET", "/", 200))
		require.NoError(t, err)
	}

	ix, err := m.OpenIndex(ctx, store)
	require.NoError(t, err)
	assert.Len(t, ix.Lookup("aaa"), 2)
	assert.Len(t, ix.Lookup("bbb"), 1)
	assert.Empty(t, ix.Lookup("zzz"))
}
