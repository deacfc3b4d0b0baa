package project

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/GriffinCanCode/api-diagnostics/internal/domain/detect"
	"github.com/GriffinCanCode/api-diagnostics/internal/shared/utils"
)

// StateVersion is the state record format version
const StateVersion = 1

// Injection is one block placed into a project file
type Injection struct {
	// Path is relative to the project root, slash separated
	Path      string           `yaml:"path"`
	Marker    string           `yaml:"marker"`
	Position  []string         `yaml:"position"`
	Framework detect.Framework `yaml:"framework"`
}

// State is the durable lifecycle record
type State struct {
	Version    int                 `yaml:"version"`
	Project    *detect.ProjectInfo `yaml:"project"`
	Monitoring bool                `yaml:"monitoring"`
	Injections []Injection         `yaml:"injections"`
	Generated  []string            `yaml:"generated,omitempty"`
	CreatedAt  time.Time           `yaml:"created_at"`
	UpdatedAt  time.Time           `yaml:"updated_at"`
}

func readState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", path, err)
	}
	if st.Version != StateVersion {
		return nil, fmt.Errorf("unsupported state version %d in %s", st.Version, path)
	}
	return &st, nil
}

func writeState(path string, st *State) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}
