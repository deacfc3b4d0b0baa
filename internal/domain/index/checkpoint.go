package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/api-diagnostics/internal/domain/logrecord"
	"github.com/GriffinCanCode/api-diagnostics/internal/shared/utils"
)

const (
	checkpointVersion = 1

	// headBytes is how much of the log start fingerprints the file
	headBytes = 4096
)

var (
	// ErrNoCheckpoint is returned when checkpoints are disabled or absent
	ErrNoCheckpoint = errors.New("no index checkpoint")

	// ErrStaleCheckpoint is returned when the checkpoint does not match the log
	ErrStaleCheckpoint = errors.New("index checkpoint does not match log")
)

// Source says where Load got its content from
type Source string

const (
	FromCheckpoint Source = "checkpoint"
	FromRebuild    Source = "rebuild"
)

type checkpointFile struct {
	Version  int                `json:"version"`
	SavedAt  time.Time          `json:"saved_at"`
	Offset   int64              `json:"offset"`
	HeadLen  int64              `json:"head_len"`
	HeadHash string             `json:"head_hash"`
	Failures int                `json:"failures"`
	Records  []checkpointRecord `json:"records"`
}

type checkpointRecord struct {
	Offset int64            `json:"offset"`
	Record logrecord.Record `json:"record"`
}

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// Load restores the index from its checkpoint and tails the log from there.
// Without a usable checkpoint it falls back to Rebuild.
func (ix *Index) Load(ctx context.Context) (Source, error) {
	err := ix.restore()
	if err == nil {
		ix.metrics.IncIndexLoads(string(FromCheckpoint))
		if _, err := ix.Refresh(ctx); err != nil {
			return FromCheckpoint, err
		}
		ix.logger.Debug("Index loaded from checkpoint",
			zap.String("checkpoint", ix.checkpoint),
			zap.Int("records", ix.Len()))
		return FromCheckpoint, nil
	}

	if !errors.Is(err, ErrNoCheckpoint) {
		ix.logger.Warn("Ignoring index checkpoint", zap.String("checkpoint", ix.checkpoint), zap.Error(err))
	}
	return FromRebuild, ix.Rebuild(ctx)
}

// Save writes a checkpoint of every record read from the store. Records added
// with Observe are not part of it.
func (ix *Index) Save(ctx context.Context) error {
	if ix.checkpoint == "" {
		return ErrNoCheckpoint
	}
	if _, err := ix.Refresh(ctx); err != nil {
		return err
	}

	ix.mu.RLock()
	cp := checkpointFile{
		Version:  checkpointVersion,
		SavedAt:  time.Now().UTC(),
		Offset:   ix.offset,
		HeadLen:  min(ix.offset, headBytes),
		Failures: ix.failures,
		Records:  make([]checkpointRecord, 0, len(ix.ordered)),
	}
	for _, it := range ix.ordered {
		if it.offset >= 0 && it.offset < ix.offset {
			cp.Records = append(cp.Records, checkpointRecord{Offset: it.offset, Record: it.rec})
		}
	}
	ix.mu.RUnlock()

	hash, err := ix.store.HeadHash(cp.HeadLen)
	if err != nil {
		return err
	}
	cp.HeadHash = hash

	data, err := sonic.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(ix.checkpoint), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	if err := utils.WriteFileAtomic(ix.checkpoint, encoder.EncodeAll(data, nil), 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}

	ix.logger.Debug("Index checkpoint saved",
		zap.String("checkpoint", ix.checkpoint),
		zap.Int("records", len(cp.Records)),
		zap.Int64("offset", cp.Offset))
	return nil
}

// restore replaces the content with the checkpoint if it matches the log
func (ix *Index) restore() error {
	if ix.checkpoint == "" {
		return ErrNoCheckpoint
	}
	compressed, err := os.ReadFile(ix.checkpoint)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNoCheckpoint
	}
	if err != nil {
		return err
	}
	data, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("decompress checkpoint: %w", err)
	}

	var cp checkpointFile
	if err := sonic.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("decode checkpoint: %w", err)
	}
	if cp.Version != checkpointVersion {
		return fmt.Errorf("%w: version %d", ErrStaleCheckpoint, cp.Version)
	}

	size, err := ix.store.Size()
	if err != nil {
		return err
	}
	if size < cp.Offset {
		return fmt.Errorf("%w: log is %d bytes, checkpoint at %d", ErrStaleCheckpoint, size, cp.Offset)
	}
	hash, err := ix.store.HeadHash(cp.HeadLen)
	if err != nil {
		return err
	}
	if hash != cp.HeadHash {
		return fmt.Errorf("%w: head changed", ErrStaleCheckpoint)
	}

	groups := make(map[string][]logrecord.Record)
	ordered := make([]item, 0, len(cp.Records))
	for _, r := range cp.Records {
		if r.Offset < 0 || r.Offset >= cp.Offset {
			return fmt.Errorf("%w: record offset %d out of range", ErrStaleCheckpoint, r.Offset)
		}
		// Saved in index order, so appending keeps both orderings
		groups[r.Record.CorrelationID] = append(groups[r.Record.CorrelationID], r.Record)
		ordered = append(ordered, item{rec: r.Record, offset: r.Offset})
	}

	ix.mu.Lock()
	ix.groups = groups
	ix.ordered = ordered
	ix.offset = cp.Offset
	ix.seen = make(map[int64]int64)
	ix.failures = cp.Failures
	ix.gen++
	ix.mu.Unlock()

	ix.publishSize()
	return nil
}
