package detect

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/logging"
)

// ErrNoFrameworks is returned when no detector recognises the project
var ErrNoFrameworks = errors.New("no supported frameworks detected")

// Kind is the side of the application a framework belongs to
type Kind string

const (
	Frontend Kind = "frontend"
	Backend  Kind = "backend"
)

// Framework names a supported framework
type Framework string

const (
	React   Framework = "react"
	FastAPI Framework = "fastapi"
	Flask   Framework = "flask"
)

// Finding is one recognised framework
type Finding struct {
	Framework Framework `yaml:"framework" json:"framework"`
	Kind      Kind      `yaml:"kind" json:"kind"`

	// Entry is the file to instrument; empty when none could be chosen
	Entry string `yaml:"entry,omitempty" json:"entry,omitempty"`

	// AppVar is the application object bound in Entry (backend only)
	AppVar string `yaml:"app_var,omitempty" json:"app_var,omitempty"`

	// Evidence lists what triggered the detection, for reporting
	Evidence []string `yaml:"evidence,omitempty" json:"evidence,omitempty"`
}

func (f *Finding) String() string {
	if f.Entry == "" {
		return string(f.Framework)
	}
	return fmt.Sprintf("%s (%s)", f.Framework, filepath.Base(f.Entry))
}

// Detector recognises one framework. Detect returns nil, nil when the
// framework is absent.
type Detector interface {
	Name() Framework
	Kind() Kind
	Detect(ctx context.Context, root string) (*Finding, error)
}

// ProjectType summarises which sides were found
type ProjectType string

const (
	FrontendProject  ProjectType = "frontend"
	BackendProject   ProjectType = "backend"
	FullstackProject ProjectType = "fullstack"
)

// ProjectInfo is the detection result for one project
type ProjectInfo struct {
	Root           string      `yaml:"root" json:"root"`
	Type           ProjectType `yaml:"type" json:"type"`
	Frontend       *Finding    `yaml:"frontend,omitempty" json:"frontend,omitempty"`
	Backend        *Finding    `yaml:"backend,omitempty" json:"backend,omitempty"`
	PackageManager string      `yaml:"package_manager" json:"package_manager"`
}

// Findings returns the frontend then the backend finding, whichever exist
func (p *ProjectInfo) Findings() []*Finding {
	var out []*Finding
	if p.Frontend != nil {
		out = append(out, p.Frontend)
	}
	if p.Backend != nil {
		out = append(out, p.Backend)
	}
	return out
}

// Registry runs detectors in order
type Registry struct {
	detectors []Detector
	logger    *zap.Logger
}

// NewRegistry creates a registry over detectors, tried in the given order
func NewRegistry(logger *zap.Logger, detectors ...Detector) *Registry {
	return &Registry{detectors: detectors, logger: logging.OrNop(logger)}
}

// DefaultRegistry knows React, FastAPI and Flask
func DefaultRegistry(logger *zap.Logger) *Registry {
	return NewRegistry(logger, NewReact(), NewFastAPI(), NewFlask())
}

// Detectors returns the registered detectors
func (r *Registry) Detectors() []Detector {
	return r.detectors
}

// Detect inspects root. It returns ErrNoFrameworks when nothing fires.
func (r *Registry) Detect(ctx context.Context, root string) (*ProjectInfo, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	info := &ProjectInfo{Root: abs}
	for _, d := range r.detectors {
		if d.Kind() == Frontend && info.Frontend != nil || d.Kind() == Backend && info.Backend != nil {
			continue
		}

		finding, err := d.Detect(ctx, abs)
		if err != nil {
			return nil, fmt.Errorf("detect %s: %w", d.Name(), err)
		}
		if finding == nil {
			continue
		}

		r.logger.Debug("Framework detected",
			zap.String("framework", string(finding.Framework)),
			zap.String("entry", finding.Entry),
			zap.Strings("evidence", finding.Evidence))

		if finding.Kind == Frontend {
			info.Frontend = finding
		} else {
			info.Backend = finding
		}
	}

	switch {
	case info.Frontend != nil && info.Backend != nil:
		info.Type = FullstackProject
	case info.Frontend != nil:
		info.Type = FrontendProject
	case info.Backend != nil:
		info.Type = BackendProject
	default:
		return nil, ErrNoFrameworks
	}

	info.PackageManager = "pip"
	if info.Frontend != nil {
		info.PackageManager = "npm"
	}
	return info, nil
}
