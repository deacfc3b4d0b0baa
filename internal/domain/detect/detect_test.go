package detect

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

const flaskApp = `from flask import Flask

app = Flask(__name__)

@app.route('/')
def hello():
    return 'Hello World!'
`

const fastAPIApp = `import uvicorn
from fastapi import FastAPI

api: FastAPI = FastAPI(title="demo")

@api.get("/")
def root():
    return {}
`

func TestDetectFlask(t *testing.T) {
	root := t.TempDir()
	entry := write(t, root, "app.py", flaskApp)
	write(t, root, "tests/test_app.py", "from flask import Flask\napp = Flask(__name__)\n")

	info, err := DefaultRegistry(nil).Detect(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, BackendProject, info.Type)
	assert.Equal(t, "pip", info.PackageManager)
	require.NotNil(t, info.Backend)
	assert.Equal(t, Flask, info.Backend.Framework)
	assert.Equal(t, entry, info.Backend.Entry)
	assert.Equal(t, "app", info.Backend.AppVar)
	assert.Nil(t, info.Frontend)
}

func TestDetectFastAPIBeforeFlask(t *testing.T) {
	root := t.TempDir()
	entry := write(t, root, "service/main.py", fastAPIApp)
	write(t, root, "legacy.py", flaskApp)

	info, err := DefaultRegistry(nil).Detect(context.Background(), root)
	require.NoError(t, err)
	require.NotNil(t, info.Backend)
	assert.Equal(t, FastAPI, info.Backend.Framework)
	assert.Equal(t, entry, info.Backend.Entry)
	assert.Equal(t, "api", info.Backend.AppVar)
}

func TestDetectReactFullstack(t *testing.T) {
	root := t.TempDir()
	write(t, root, "frontend/package.json", `{"name":"web","dependencies":{"react":"^18.2.0","react-dom":"^18.2.0"}}`)
	entry := write(t, root, "frontend/src/main.jsx", "import React from 'react'\n")
	write(t, root, "backend/app.py", flaskApp)

	info, err := DefaultRegistry(nil).Detect(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, FullstackProject, info.Type)
	assert.Equal(t, "npm", info.PackageManager)
	require.NotNil(t, info.Frontend)
	assert.Equal(t, entry, info.Frontend.Entry)
	assert.Contains(t, info.Frontend.Evidence, "frontend/package.json: react")
	assert.Len(t, info.Findings(), 2)
}

func TestDetectReactDevDependencyOnly(t *testing.T) {
	root := t.TempDir()
	write(t, root, "package.json", `{"devDependencies":{"@types/react":"18.0.0"}}`)
	entry := write(t, root, "src/index.tsx", "export {}\n")

	f, err := NewReact().Detect(context.Background(), root)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, entry, f.Entry)
}

func TestDetectIgnoresNodeModulesAndVenv(t *testing.T) {
	root := t.TempDir()
	write(t, root, "node_modules/pkg/app.py", flaskApp)
	write(t, root, ".venv/lib/site.py", flaskApp)
	write(t, root, "package.json", `{"dependencies":{"vue":"3"}}`)

	_, err := DefaultRegistry(nil).Detect(context.Background(), root)
	assert.ErrorIs(t, err, ErrNoFrameworks)
}

func TestDetectFromManifestsOnly(t *testing.T) {
	root := t.TempDir()
	write(t, root, "requirements.txt", "# deps\nFlask==3.0.0\nrequests>=2\n")

	f, err := NewFlask().Detect(context.Background(), root)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Empty(t, f.Entry)
	assert.Equal(t, []string{"requirements.txt: flask"}, f.Evidence)

	root = t.TempDir()
	write(t, root, "pyproject.toml", "[project]\nname = \"svc\"\ndependencies = [\"fastapi>=0.110\", \"uvicorn\"]\n")
	f, err = NewFastAPI().Detect(context.Background(), root)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, []string{"pyproject.toml: fastapi"}, f.Evidence)

	root = t.TempDir()
	write(t, root, "pyproject.toml", "[tool.poetry.dependencies]\npython = \"^3.11\"\nFlask = \"^3.0\"\n")
	f, err = NewFlask().Detect(context.Background(), root)
	require.NoError(t, err)
	require.NotNil(t, f)
}

func TestDetectEmptyProject(t *testing.T) {
	_, err := DefaultRegistry(nil).Detect(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrNoFrameworks)
}

func TestDetectCancelled(t *testing.T) {
	root := t.TempDir()
	write(t, root, "app.py", flaskApp)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFlask().Detect(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeDist(t *testing.T) {
	assert.Equal(t, "flask-cors", normalizeDist("Flask_CORS"))
	assert.Equal(t, "zope-interface", normalizeDist("zope.interface"))
}
