package backup

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/api-diagnostics/internal/shared/id"
	"github.com/GriffinCanCode/api-diagnostics/internal/shared/utils"
)

const historyExt = ".zst"

// Encoders without options never fail to construct
var (
	historyEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	historyDecoder, _ = zstd.NewReader(nil)
)

// HistoryEntry is one archived snapshot
type HistoryEntry struct {
	ID        id.SnapshotID
	Path      string
	CreatedAt time.Time
	File      string
	Size      int64
}

// History lists archived snapshots of path, newest first
func (m *Manager) History(path string) ([]HistoryEntry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, ioError("history", path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history(abs)
}

// Prune keeps the newest keep archived snapshots of path and deletes the
// rest, returning how many were removed
func (m *Manager) Prune(path string, keep int) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, ioError("prune", path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prune(abs, keep)
}

// LoadHistory decompresses an archived snapshot
func (m *Manager) LoadHistory(entry HistoryEntry) (*Snapshot, error) {
	compressed, err := os.ReadFile(entry.File)
	if err != nil {
		return nil, ioError("history", entry.File, err)
	}
	content, err := historyDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, ioError("history", entry.File, err)
	}

	return &Snapshot{
		Path:      entry.Path,
		Mode:      utils.FileMode(entry.Path, 0o644),
		CreatedAt: entry.CreatedAt,
		Size:      len(content),
		SHA256:    m.hasher.Hash(content),
		Content:   content,
	}, nil
}

// Baseline returns the oldest snapshot still retained for path: the oldest
// archived one, or the live one when there is no history
func (m *Manager) Baseline(path string) (*Snapshot, error) {
	entries, err := m.History(path)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		return m.LoadHistory(entries[len(entries)-1])
	}
	return m.Lookup(path)
}

func (m *Manager) historyPath(abs string) string {
	return filepath.Join(m.historyDir, m.hasher.PathKey(abs))
}

// archive moves a superseded live snapshot into history
func (m *Manager) archive(prev *Snapshot) error {
	if m.historyLimit <= 0 {
		return nil
	}

	dir := m.historyPath(prev.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ioError("archive", dir, err)
	}

	sid := id.SnapshotIDAt(prev.CreatedAt)
	file := filepath.Join(dir, sid.String()+historyExt)
	compressed := historyEncoder.EncodeAll(prev.Content, nil)
	if err := utils.WriteFileAtomic(file, compressed, 0o600); err != nil {
		return ioError("archive", file, err)
	}

	m.logger.Debug("Archived snapshot",
		zap.String("path", prev.Path),
		zap.String("snapshot_id", sid.String()),
		zap.Int("size", prev.Size),
		zap.Int("compressed", len(compressed)))

	if _, err := m.prune(prev.Path, m.historyLimit); err != nil {
		m.logger.Warn("Failed to prune snapshot history", zap.String("path", prev.Path), zap.Error(err))
	}
	return nil
}

func (m *Manager) history(abs string) ([]HistoryEntry, error) {
	dir := m.historyPath(abs)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, ioError("history", dir, err)
	}

	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, historyExt) {
			continue
		}
		sid := id.SnapshotID(strings.TrimSuffix(name, historyExt))
		created, err := sid.Time()
		if err != nil {
			continue
		}
		var size int64
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		out = append(out, HistoryEntry{
			ID:        sid,
			Path:      abs,
			CreatedAt: created,
			File:      filepath.Join(dir, name),
			Size:      size,
		})
	}

	// ULIDs sort by time
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *Manager) prune(abs string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	entries, err := m.history(abs)
	if err != nil {
		return 0, err
	}
	if len(entries) <= keep {
		return 0, nil
	}

	removed := 0
	for _, e := range entries[keep:] {
		if err := os.Remove(e.File); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, ioError("prune", e.File, err)
		}
		removed++
	}

	m.logger.Debug("Pruned snapshot history",
		zap.String("path", abs),
		zap.Int("removed", removed),
		zap.Int("kept", keep))
	return removed, nil
}
