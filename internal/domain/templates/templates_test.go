package templates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/api-diagnostics/internal/domain/backup"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/detect"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/inject"
)

func params() Params {
	return Params{
		GeneratedDir: "/srv/app/.api-diagnostics/generated",
		LogPath:      "/srv/app/.api-diagnostics/logs/api-diagnostics.log",
		EnabledPath:  "/srv/app/.api-diagnostics/enabled",
		AppVar:       "app",
	}
}

func TestInterceptor(t *testing.T) {
	out, err := Interceptor(params())
	require.NoError(t, err)

	assert.Contains(t, out, `var header = "X-Correlation-ID";`)
	assert.Contains(t, out, "apidiag search ")
	assert.NotContains(t, out, "{{")

	// The payload must survive shallow validation as JavaScript
	assert.NoError(t, inject.JavaScript.Validator().Validate([]byte(out)))
}

func TestBootstrap(t *testing.T) {
	flask, err := Bootstrap(detect.Flask, params())
	require.NoError(t, err)
	assert.Contains(t, flask, `_apidiag_sys.path.insert(0, "/srv/app/.api-diagnostics/generated")`)
	assert.Contains(t, flask, "_APIDiagnostics(app)")
	assert.NoError(t, inject.Python.Validator().Validate([]byte(flask)))

	p := params()
	p.AppVar = "api"
	fast, err := Bootstrap(detect.FastAPI, p)
	require.NoError(t, err)
	assert.Contains(t, fast, "api.add_middleware(_APIDiagnostics)")

	p.AppVar = "app; import os"
	_, err = Bootstrap(detect.Flask, p)
	assert.Error(t, err)

	_, err = Bootstrap(detect.React, params())
	assert.ErrorIs(t, err, ErrUnsupportedFramework)
}

func TestBootstrapQuotesWindowsPaths(t *testing.T) {
	p := params()
	p.GeneratedDir = `C:\Users\dev\proj\.api-diagnostics\generated`
	out, err := Bootstrap(detect.Flask, p)
	require.NoError(t, err)
	assert.Contains(t, out, `"C:\\Users\\dev\\proj\\.api-diagnostics\\generated"`)
}

func TestMiddleware(t *testing.T) {
	for _, fw := range []detect.Framework{detect.Flask, detect.FastAPI} {
		t.Run(string(fw), func(t *testing.T) {
			p := params()
			p.ExcerptLimit = 256
			out, err := Middleware(fw, p)
			require.NoError(t, err)

			assert.Contains(t, out, `LOG_PATH = "/srv/app/.api-diagnostics/logs/api-diagnostics.log"`)
			assert.Contains(t, out, `ENABLED_FLAG = "/srv/app/.api-diagnostics/enabled"`)
			assert.Contains(t, out, "EXCERPT_LIMIT = 256")
			assert.Contains(t, out, "os.O_APPEND")
			assert.Contains(t, out, `os.write(fd, line + b"\n")`)
			assert.NotContains(t, out, "{{")
			assert.NoError(t, inject.Python.Validator().Validate([]byte(out)))

			// Field order matches the record codec
			ts := strings.Index(out, `"timestamp":`)
			body := strings.Index(out, `"body_excerpt":`)
			assert.True(t, ts > 0 && body > ts)
		})
	}

	_, err := Middleware(detect.Flask, Params{})
	assert.Error(t, err)
}

func TestMiddlewareClassNamesMatchBootstrap(t *testing.T) {
	flask, err := Middleware(detect.Flask, params())
	require.NoError(t, err)
	assert.Contains(t, flask, "class FlaskAPIDebugger:")

	fast, err := Middleware(detect.FastAPI, params())
	require.NoError(t, err)
	assert.Contains(t, fast, "class APIDebugMiddleware(BaseHTTPMiddleware):")
}

func TestPayloadInjectsCleanly(t *testing.T) {
	dir := t.TempDir()
	app := filepath.Join(dir, "app.py")
	original := "from flask import Flask\n\napp = Flask(__name__)\n\n@app.route('/')\ndef hello():\n    return 'hi'\n"
	require.NoError(t, os.WriteFile(app, []byte(original), 0o644))

	payload, err := Bootstrap(detect.Flask, params())
	require.NoError(t, err)

	inj := inject.New(backup.NewManager(filepath.Join(dir, "backups")))
	pos := inject.AfterStatement(detect.NewFlask().Constructor)
	_, err = inj.Apply(app, MiddlewareMarker, Payload(payload), inject.At(pos))
	require.NoError(t, err)

	got, err := os.ReadFile(app)
	require.NoError(t, err)
	assert.Contains(t, string(got), "app = Flask(__name__)\n# START apidiag:api_diagnostics_middleware\nimport sys as _apidiag_sys\n")

	_, err = inj.Remove(app, MiddlewareMarker)
	require.NoError(t, err)
	got, err = os.ReadFile(app)
	require.NoError(t, err)
	assert.Equal(t, original, string(got))
}

func TestMarker(t *testing.T) {
	assert.Equal(t, InterceptorMarker, Marker(detect.Frontend))
	assert.Equal(t, MiddlewareMarker, Marker(detect.Backend))
}

const browserStub = `
var captured = null;
var window = {
  crypto: { randomUUID: function () { return 'abc12345-0000-4000-8000-000000000000'; } },
  fetch: function (input, init) {
    captured = { url: input, method: init.method, id: init.headers.get('X-Correlation-ID') };
    return Promise.resolve({ ok: true, status: 200 });
  }
};
function Headers(init) {
  var values = {};
  this.set = function (k, v) { values[k.toLowerCase()] = v; };
  this.get = function (k) { return values[k.toLowerCase()]; };
}
`

func TestInterceptorTagsFetchCalls(t *testing.T) {
	out, err := Interceptor(params())
	require.NoError(t, err)

	vm := goja.New()
	_, err = vm.RunString(browserStub)
	require.NoError(t, err)
	_, err = vm.RunString(out)
	require.NoError(t, err)

	// Loading the block twice must not wrap fetch twice
	_, err = vm.RunString(out)
	require.NoError(t, err)

	_, err = vm.RunString(`window.fetch('/api/users', { method: 'post' })`)
	require.NoError(t, err)

	captured := vm.Get("captured").Export().(map[string]any)
	assert.Equal(t, "/api/users", captured["url"])
	assert.Equal(t, "post", captured["method"])
	assert.Equal(t, "abc12345-0000-4000-8000-000000000000", captured["id"])

	last, err := vm.RunString(`window.__apiDiagnostics.lastId`)
	require.NoError(t, err)
	assert.Equal(t, "abc12345-0000-4000-8000-000000000000", last.String())
}
