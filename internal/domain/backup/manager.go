package backup

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/logging"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/api-diagnostics/internal/shared/utils"
)

const metaSuffix = ".meta.json"

// Snapshot is an exact copy of one file's content
type Snapshot struct {
	Path      string      `json:"path"`
	Mode      os.FileMode `json:"mode"`
	CreatedAt time.Time   `json:"created_at"`
	Size      int         `json:"size"`
	SHA256    string      `json:"sha256"`

	// Content is kept out of the sidecar; it lives in its own file
	Content []byte `json:"-"`
}

// Verify checks the content against the recorded checksum
func (s *Snapshot) Verify() error {
	if got := utils.DefaultHasher().Hash(s.Content); got != s.SHA256 {
		return fmt.Errorf("%w: %s", ErrCorruptSnapshot, s.Path)
	}
	return nil
}

// Manager owns the snapshots of one project
type Manager struct {
	dir          string
	historyDir   string
	historyLimit int
	hasher       *utils.Hasher
	logger       *zap.Logger
	metrics      *monitoring.Metrics
	now          func() time.Time

	// Serializes snapshot bookkeeping within one process
	mu sync.Mutex
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrNop(l) }
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithHistoryLimit bounds archived snapshots per file; 0 keeps none
func WithHistoryLimit(n int) Option {
	return func(m *Manager) { m.historyLimit = n }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager storing snapshots under dir.
// History goes to dir/history.
func NewManager(dir string, opts ...Option) *Manager {
	m := &Manager{
		dir:          dir,
		historyDir:   filepath.Join(dir, "history"),
		historyLimit: 5,
		hasher:       utils.DefaultHasher(),
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the live snapshot directory
func (m *Manager) Dir() string { return m.dir }

// Snapshot reads the whole current content of path and persists it as the
// live snapshot. The returned Content is the exact byte sequence callers
// must base their subsequent write on.
func (m *Manager) Snapshot(path string) (*Snapshot, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, ioError("snapshot", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, ioError("snapshot", abs, err)
	}
	if !info.Mode().IsRegular() {
		return nil, ioError("snapshot", abs, errors.New("not a regular file"))
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, ioError("snapshot", abs, err)
	}

	snap := &Snapshot{
		Path:      abs,
		Mode:      info.Mode().Perm(),
		CreatedAt: m.now().UTC(),
		Size:      len(content),
		SHA256:    m.hasher.Hash(content),
		Content:   content,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, ioError("snapshot", m.dir, err)
	}

	if prev, err := m.load(abs); err == nil {
		if prev.SHA256 == snap.SHA256 {
			// Same bytes: keep the existing snapshot and its history untouched
			return prev, nil
		}
		if err := m.archive(prev); err != nil {
			// Keep the previous snapshot rather than lose it
			return nil, err
		}
	} else if !errors.Is(err, ErrNoSnapshot) {
		m.logger.Warn("Replacing unreadable snapshot", zap.String("path", abs), zap.Error(err))
	}

	if err := m.persist(snap); err != nil {
		return nil, err
	}

	m.metrics.IncSnapshots()
	m.logger.Debug("Snapshot taken",
		zap.String("path", abs),
		zap.Int("size", snap.Size),
		zap.String("sha256", utils.ShortHash(snap.SHA256, 12)))

	return snap, nil
}

// Restore overwrites the snapshot's path with its exact content.
// On failure the target is left untouched.
func (m *Manager) Restore(snap *Snapshot) error {
	if snap == nil {
		return ioError("restore", "", errors.New("nil snapshot"))
	}
	if err := snap.Verify(); err != nil {
		m.metrics.RecordRestore("corrupt")
		return fmt.Errorf("%w: %w", ErrRestoreFailed, err)
	}

	mode := snap.Mode
	if mode == 0 {
		mode = utils.FileMode(snap.Path, 0o644)
	}
	if err := utils.WriteFileAtomic(snap.Path, snap.Content, mode); err != nil {
		m.metrics.RecordRestore("error")
		return fmt.Errorf("%w: %w", ErrRestoreFailed, ioError("restore", snap.Path, err))
	}

	m.metrics.RecordRestore("ok")
	m.logger.Info("Restored file from snapshot",
		zap.String("path", snap.Path),
		zap.Time("snapshot_at", snap.CreatedAt))
	return nil
}

// RestorePath restores the live snapshot of path
func (m *Manager) RestorePath(path string) (*Snapshot, error) {
	snap, err := m.Lookup(path)
	if err != nil {
		return nil, err
	}
	return snap, m.Restore(snap)
}

// Lookup returns the live snapshot of path
func (m *Manager) Lookup(path string) (*Snapshot, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, ioError("lookup", path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(abs)
}

// Discard deletes the live snapshot of path. Discarding a path without a
// snapshot is a no-op.
func (m *Manager) Discard(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ioError("discard", path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	content, meta := m.files(abs)
	for _, p := range []string{meta, content} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ioError("discard", p, err)
		}
	}

	m.logger.Debug("Snapshot discarded", zap.String("path", abs))
	return nil
}

// List returns every live snapshot, without content
func (m *Manager) List() ([]*Snapshot, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, ioError("list", m.dir, err)
	}

	var out []*Snapshot
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		snap, err := readMeta(filepath.Join(m.dir, e.Name()))
		if err != nil {
			m.logger.Warn("Skipping unreadable snapshot metadata", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// files returns the content and sidecar locations for an absolute path
func (m *Manager) files(abs string) (content, meta string) {
	content = filepath.Join(m.dir, m.hasher.PathKey(abs))
	return content, content + metaSuffix
}

func (m *Manager) load(abs string) (*Snapshot, error) {
	contentPath, metaPath := m.files(abs)

	snap, err := readMeta(metaPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, abs)
	}
	if err != nil {
		return nil, ioError("lookup", metaPath, err)
	}

	content, err := os.ReadFile(contentPath)
	if err != nil {
		return nil, ioError("lookup", contentPath, err)
	}
	snap.Content = content
	if err := snap.Verify(); err != nil {
		return nil, err
	}
	return snap, nil
}

// persist writes content before the sidecar; a sidecar never points at
// content that is not fully on disk
func (m *Manager) persist(snap *Snapshot) error {
	contentPath, metaPath := m.files(snap.Path)

	if err := utils.WriteFileAtomic(contentPath, snap.Content, 0o600); err != nil {
		return ioError("snapshot", contentPath, err)
	}

	meta, err := sonic.ConfigStd.MarshalIndent(snap, "", "  ")
	if err != nil {
		return ioError("snapshot", metaPath, err)
	}
	if err := utils.WriteFileAtomic(metaPath, meta, 0o600); err != nil {
		return ioError("snapshot", metaPath, err)
	}
	return nil
}

func readMeta(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := sonic.ConfigStd.Unmarshal(bytes.TrimSpace(data), &snap); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &snap, nil
}
