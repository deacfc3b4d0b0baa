// Package templates renders the code that instrumentation adds to a project:
// the fetch interceptor for the frontend, the bootstrap block for the backend
// entry file and the generated Python middleware module the bootstrap imports.
package templates

import (
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/api-diagnostics/internal/domain/detect"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/logrecord"
)

const (
	// InterceptorMarker delimits the frontend fetch interceptor
	InterceptorMarker = "api_diagnostics_interceptor"

	// MiddlewareMarker delimits the backend bootstrap block
	MiddlewareMarker = "api_diagnostics_middleware"

	// CorrelationHeader carries the correlation id between the two sides
	CorrelationHeader = "X-Correlation-ID"

	// MiddlewareModule is the file name of the generated Python module
	MiddlewareModule = "api_middleware.py"

	// DefaultCommand is the CLI name mentioned in generated code
	DefaultCommand = "apidiag"
)

// ErrUnsupportedFramework is returned for frameworks without templates
var ErrUnsupportedFramework = errors.New("no template for framework")

//go:embed files/*.tmpl
var files embed.FS

var tmpl = template.Must(template.New("templates").
	Funcs(template.FuncMap{"quote": strconv.Quote}).
	ParseFS(files, "files/*.tmpl"))

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Params are the values substituted into templates
type Params struct {
	// GeneratedDir holds the generated middleware module
	GeneratedDir string
	// LogPath is the log store file the middleware appends to
	LogPath string
	// EnabledPath is the flag file whose presence turns logging on
	EnabledPath string
	// AppVar is the backend application object
	AppVar string

	ExcerptLimit int
	MaxLineBytes int
	Header       string
	Command      string
}

func (p Params) withDefaults() Params {
	if p.ExcerptLimit <= 0 {
		p.ExcerptLimit = logrecord.DefaultExcerptLimit
	}
	if p.MaxLineBytes <= 0 {
		p.MaxLineBytes = logrecord.DefaultMaxLineBytes
	}
	if p.Header == "" {
		p.Header = CorrelationHeader
	}
	if p.Command == "" {
		p.Command = DefaultCommand
	}
	if p.AppVar == "" {
		p.AppVar = "app"
	}
	return p
}

// Interceptor renders the frontend payload that tags every fetch call with
// a correlation id
func Interceptor(p Params) (string, error) {
	out, err := render("interceptor.js.tmpl", p.withDefaults())
	if err != nil {
		return "", err
	}
	// Entry files may be JSX or modules; the payload itself must be plain script
	if _, err := goja.Compile(InterceptorMarker+".js", out, true); err != nil {
		return "", fmt.Errorf("interceptor does not parse: %w", err)
	}
	return out, nil
}

// Bootstrap renders the backend payload placed after the application is
// constructed
func Bootstrap(fw detect.Framework, p Params) (string, error) {
	p = p.withDefaults()
	if !identifier.MatchString(p.AppVar) {
		return "", fmt.Errorf("invalid application variable %q", p.AppVar)
	}
	if p.GeneratedDir == "" {
		return "", errors.New("generated directory not set")
	}
	switch fw {
	case detect.Flask:
		return render("bootstrap_flask.py.tmpl", p)
	case detect.FastAPI:
		return render("bootstrap_fastapi.py.tmpl", p)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFramework, fw)
}

// Middleware renders the generated Python module for fw
func Middleware(fw detect.Framework, p Params) (string, error) {
	p = p.withDefaults()
	if p.LogPath == "" || p.EnabledPath == "" {
		return "", errors.New("log and flag paths must be set")
	}
	switch fw {
	case detect.Flask:
		return render("middleware_flask.py.tmpl", p)
	case detect.FastAPI:
		return render("middleware_fastapi.py.tmpl", p)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFramework, fw)
}

// Marker returns the injection marker for a finding's side
func Marker(kind detect.Kind) string {
	if kind == detect.Frontend {
		return InterceptorMarker
	}
	return MiddlewareMarker
}

func render(name string, p Params) (string, error) {
	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, name, p); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return b.String(), nil
}

// Payload trims the trailing newline templates end with, as injection
// blocks supply their own line endings
func Payload(s string) string {
	return strings.TrimRight(s, "\r\n")
}
