package inject

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/api-diagnostics/internal/domain/backup"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/logging"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/api-diagnostics/internal/shared/utils"
)

// Action reports what an operation did to the file
type Action string

const (
	Inserted  Action = "inserted"
	Replaced  Action = "replaced"
	Unchanged Action = "unchanged"
	Removed   Action = "removed"
)

// Result describes a completed Apply or Remove
type Result struct {
	Path     string
	Marker   string
	Action   Action
	Position string
	Snapshot *backup.Snapshot
}

// Injector applies and removes marked blocks. Every mutation is snapshot,
// full new content, atomic replace, then validation of what landed on disk.
type Injector struct {
	backups *backup.Manager
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// Option configures an Injector
type Option func(*Injector)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(i *Injector) { i.logger = logging.OrNop(l) }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *monitoring.Metrics) Option {
	return func(i *Injector) { i.metrics = m }
}

// New creates an injector backed by a snapshot manager
func New(backups *backup.Manager, opts ...Option) *Injector {
	i := &Injector{
		backups: backups,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ApplyOption customizes a single call
type ApplyOption func(*callConfig)

type callConfig struct {
	position  Positioner
	language  *Language
	validator Validator
}

// At sets the insertion strategy for blocks not yet in the file
func At(p Positioner) ApplyOption {
	return func(c *callConfig) { c.position = p }
}

// WithLanguage overrides language detection from the file name
func WithLanguage(l Language) ApplyOption {
	return func(c *callConfig) { c.language = &l }
}

// WithValidator overrides the language's validator
func WithValidator(v Validator) ApplyOption {
	return func(c *callConfig) { c.validator = v }
}

func (i *Injector) configure(path string, opts []ApplyOption) (callConfig, Language, error) {
	cfg := callConfig{position: DefaultPosition()}
	for _, opt := range opts {
		opt(&cfg)
	}

	var lang Language
	if cfg.language != nil {
		lang = *cfg.language
	} else {
		l, err := LanguageFor(path)
		if err != nil {
			return cfg, lang, err
		}
		lang = l
	}
	if cfg.validator == nil {
		cfg.validator = lang.Validator()
	}
	return cfg, lang, nil
}

// Apply writes payload between marker sentinels. An existing block for the
// marker is replaced in place; otherwise the block is inserted where the
// positioner says. A result that fails validation is rolled back and
// reported as a *RejectionError.
func (i *Injector) Apply(path, marker, payload string, opts ...ApplyOption) (*Result, error) {
	if err := ValidateMarker(marker); err != nil {
		return nil, err
	}
	cfg, lang, err := i.configure(path, opts)
	if err != nil {
		return nil, err
	}
	if err := checkPayload(lang.Comment, payload); err != nil {
		return nil, err
	}

	snap, err := i.backups.Snapshot(path)
	if err != nil {
		i.metrics.RecordInjection("apply", "error")
		return nil, err
	}
	content := snap.Content
	result := &Result{Path: snap.Path, Marker: marker, Snapshot: snap}

	if err := checkText(content); err != nil {
		return nil, fmt.Errorf("%s: %w", snap.Path, err)
	}
	blocks, err := findBlocks(content, lang.Comment)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", snap.Path, err)
	}

	nl := newline(content)
	var (
		next     []byte
		rendered []byte
	)

	if b, ok := lookupBlock(blocks, marker); ok {
		rendered = renderBlock(lang.Comment, marker, payload, b.Indent, nl, b.FinalNewline)
		if bytes.Equal(content[b.Start:b.End], rendered) {
			result.Action = Unchanged
			i.metrics.RecordInjection("apply", string(Unchanged))
			i.logger.Debug("Block already up to date", zap.String("path", snap.Path), zap.String("marker", marker))
			return result, nil
		}
		next = splice(content, b.Start, b.End, rendered)
		result.Action = Replaced
		result.Position = "in_place"
	} else {
		anchor, err := cfg.position.Position(content, lang)
		if err != nil {
			return nil, fmt.Errorf("position block %s in %s: %w", marker, snap.Path, err)
		}
		if anchor.Offset >= len(content) && len(content) > 0 && content[len(content)-1] != '\n' {
			// Appending to a last line without newline: the block takes the
			// separator and the file keeps ending without one
			rendered = append([]byte(nl), renderBlock(lang.Comment, marker, payload, anchor.Indent, nl, false)...)
		} else {
			rendered = renderBlock(lang.Comment, marker, payload, anchor.Indent, nl, true)
		}
		next = splice(content, anchor.Offset, anchor.Offset, rendered)
		result.Action = Inserted
		result.Position = cfg.position.String()
	}

	if err := i.commit(snap, marker, next, rendered, cfg.validator); err != nil {
		i.metrics.RecordInjection("apply", resultLabel(err))
		return nil, err
	}

	i.metrics.RecordInjection("apply", string(result.Action))
	i.logger.Info("Applied injection block",
		zap.String("path", snap.Path),
		zap.String("marker", marker),
		zap.String("action", string(result.Action)),
		zap.String("position", result.Position))
	return result, nil
}

// Remove deletes the block for marker, leaving every other byte as it was.
// It is the exact inverse of an Apply that inserted the block.
func (i *Injector) Remove(path, marker string, opts ...ApplyOption) (*Result, error) {
	if err := ValidateMarker(marker); err != nil {
		return nil, err
	}
	cfg, lang, err := i.configure(path, opts)
	if err != nil {
		return nil, err
	}

	snap, err := i.backups.Snapshot(path)
	if err != nil {
		i.metrics.RecordInjection("remove", "error")
		return nil, err
	}
	content := snap.Content

	blocks, err := findBlocks(content, lang.Comment)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", snap.Path, err)
	}
	b, ok := lookupBlock(blocks, marker)
	if !ok {
		i.metrics.RecordInjection("remove", "not_found")
		return nil, fmt.Errorf("%w: %s in %s", ErrMarkerNotFound, marker, snap.Path)
	}

	start := b.Start
	if !b.FinalNewline && start > 0 && content[start-1] == '\n' {
		// Undo the separator Apply added before a block at end of file
		start--
		if start > 0 && content[start-1] == '\r' {
			start--
		}
	}
	next := splice(content, start, b.End, nil)

	if err := i.commit(snap, marker, next, nil, cfg.validator); err != nil {
		i.metrics.RecordInjection("remove", resultLabel(err))
		return nil, err
	}

	i.metrics.RecordInjection("remove", string(Removed))
	i.logger.Info("Removed injection block",
		zap.String("path", snap.Path),
		zap.String("marker", marker),
		zap.Int("begin_line", b.BeginLine),
		zap.Int("end_line", b.EndLine))
	return &Result{Path: snap.Path, Marker: marker, Action: Removed, Snapshot: snap}, nil
}

// Blocks lists the managed blocks currently in a file
func (i *Injector) Blocks(path string, opts ...ApplyOption) ([]Block, error) {
	_, lang, err := i.configure(path, opts)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &backup.IOError{Op: "read", Path: path, Err: err}
	}
	return findBlocks(content, lang.Comment)
}

// Has reports whether the file contains a block for marker
func (i *Injector) Has(path, marker string, opts ...ApplyOption) (bool, error) {
	blocks, err := i.Blocks(path, opts...)
	if err != nil {
		return false, err
	}
	_, ok := lookupBlock(blocks, marker)
	return ok, nil
}

// commit replaces the file and validates what was written. On rejection the
// snapshot is restored before returning.
func (i *Injector) commit(snap *backup.Snapshot, marker string, next, block []byte, v Validator) error {
	// A file that was already broken cannot be judged as a whole; judge the
	// block alone instead
	preexisting := v.Validate(snap.Content)

	if err := utils.WriteFileAtomic(snap.Path, next, snap.Mode); err != nil {
		return &backup.IOError{Op: "write", Path: snap.Path, Err: err}
	}

	reason := i.verify(snap.Path, next, block, preexisting, v)
	if reason == nil {
		return nil
	}

	rejection := &RejectionError{Path: snap.Path, Marker: marker, Reason: reason}
	i.logger.Warn("Injection failed validation, restoring snapshot",
		zap.String("path", snap.Path),
		zap.String("marker", marker),
		zap.Error(reason))

	if err := i.backups.Restore(snap); err != nil {
		i.logger.Error("Rollback failed", zap.String("path", snap.Path), zap.Error(err))
		return errors.Join(rejection, err)
	}
	return rejection
}

func (i *Injector) verify(path string, want, block []byte, preexisting error, v Validator) error {
	got, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("re-read: %w", err)
	}
	if !bytes.Equal(got, want) {
		return errors.New("file changed during injection")
	}

	if preexisting == nil {
		return v.Validate(got)
	}

	i.logger.Warn("Target already fails validation, checking block only",
		zap.String("path", path),
		zap.Error(preexisting))
	if len(block) == 0 {
		return nil
	}
	return v.Validate(block)
}

func splice(content []byte, start, end int, insert []byte) []byte {
	out := make([]byte, 0, len(content)-(end-start)+len(insert))
	out = append(out, content[:start]...)
	out = append(out, insert...)
	return append(out, content[end:]...)
}

// checkText refuses binary and non-UTF-8 targets
func checkText(content []byte) error {
	if len(content) == 0 {
		return nil
	}

	mt := mimetype.Detect(content)
	if !isText(mt) {
		return fmt.Errorf("%w: binary content (%s)", ErrUnsupportedFile, mt.String())
	}
	if !utf8.Valid(content) {
		return fmt.Errorf("%w: %s encoded, expected utf-8", ErrUnsupportedFile, detectCharset(content))
	}
	return nil
}

func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	s := mt.String()
	return strings.HasPrefix(s, "text/") ||
		s == "application/json" ||
		s == "application/xml" ||
		s == "application/javascript"
}

func detectCharset(content []byte) string {
	result, err := chardet.NewTextDetector().DetectBest(content)
	if err != nil || result == nil {
		return "unknown charset"
	}
	return strings.ToLower(result.Charset)
}

func resultLabel(err error) string {
	if errors.Is(err, ErrInjectionRejected) {
		return "rejected"
	}
	return "error"
}
