// Package paths provides the standardized project-local state directory layout.
package paths

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultStateDir is the hidden directory created inside an instrumented project
const DefaultStateDir = ".api-diagnostics"

// State subdirectories and files, relative to the state directory
const (
	// Backups contains one live snapshot per instrumented file
	Backups = "backups"

	// History contains compressed superseded snapshots
	History = "backups/history"

	// Logs contains the append-only log store
	Logs = "logs"

	// Generated contains generated middleware modules
	Generated = "generated"

	// Index contains the correlation index checkpoint
	Index = "index"

	// ConfigFile is the durable project state record
	ConfigFile = "config.yaml"

	// EnabledFlag exists while monitoring is running
	EnabledFlag = "enabled"

	// LogFile is the default log store location
	LogFile = "logs/api-diagnostics.log"

	// CheckpointFile is the index checkpoint location
	CheckpointFile = "index/checkpoint.zst"
)

// State resolves paths inside one project's state directory
type State struct {
	Root string // project root
	Dir  string // absolute state directory
}

// NewState returns the layout for a project root. A relative stateDir is
// resolved against the root; an empty one uses DefaultStateDir.
func NewState(root, stateDir string) State {
	if stateDir == "" {
		stateDir = DefaultStateDir
	}
	if !filepath.IsAbs(stateDir) {
		stateDir = filepath.Join(root, stateDir)
	}
	return State{Root: root, Dir: filepath.Clean(stateDir)}
}

// BackupsDir returns the live snapshot directory
func (s State) BackupsDir() string { return filepath.Join(s.Dir, Backups) }

// HistoryDir returns the snapshot history directory
func (s State) HistoryDir() string { return filepath.Join(s.Dir, History) }

// GeneratedDir returns the generated module directory
func (s State) GeneratedDir() string { return filepath.Join(s.Dir, Generated) }

// ConfigPath returns the state record path
func (s State) ConfigPath() string { return filepath.Join(s.Dir, ConfigFile) }

// EnabledPath returns the monitoring flag file path
func (s State) EnabledPath() string { return filepath.Join(s.Dir, EnabledFlag) }

// CheckpointPath returns the index checkpoint path
func (s State) CheckpointPath() string { return filepath.Join(s.Dir, CheckpointFile) }

// LogPath resolves a log file location; relative paths live under the state directory
func (s State) LogPath(logFile string) string {
	if logFile == "" {
		logFile = LogFile
	}
	if filepath.IsAbs(logFile) {
		return logFile
	}
	return filepath.Join(s.Dir, logFile)
}

// StandardDirectories returns all directories that should exist after init
func (s State) StandardDirectories() []string {
	return []string{
		s.Dir,
		s.BackupsDir(),
		s.HistoryDir(),
		filepath.Join(s.Dir, Logs),
		s.GeneratedDir(),
		filepath.Join(s.Dir, Index),
	}
}

// Contains reports whether path lies inside the state directory
func (s State) Contains(path string) bool {
	rel, err := filepath.Rel(s.Dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Relative returns path relative to the project root when possible
func (s State) Relative(path string) string {
	if rel, err := filepath.Rel(s.Root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

// ValidateRelative checks that a project-relative path cannot escape the root
func ValidateRelative(rel string) error {
	if rel == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if filepath.IsAbs(rel) {
		return fmt.Errorf("path cannot be absolute")
	}
	if clean := filepath.Clean(rel); clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes the project root")
	}
	return nil
}
