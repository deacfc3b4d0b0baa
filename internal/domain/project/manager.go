package project

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/api-diagnostics/internal/domain/backup"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/detect"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/index"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/inject"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/logrecord"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/templates"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/config"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/logging"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/api-diagnostics/internal/shared/paths"
	"github.com/GriffinCanCode/api-diagnostics/internal/shared/utils"
	"github.com/GriffinCanCode/api-diagnostics/internal/storage/logstore"
)

// Manager runs lifecycle commands for one project root
type Manager struct {
	state    paths.State
	cfg      *config.Config
	registry *detect.Registry
	backups  *backup.Manager
	injector *inject.Injector
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	now      func() time.Time
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

// WithRegistry replaces the default detectors
func WithRegistry(r *detect.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager for root. A nil cfg uses defaults.
func NewManager(root string, cfg *config.Config, opts ...Option) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	if cfg == nil {
		cfg = config.Default()
	}

	m := &Manager{
		state:  paths.NewState(abs, cfg.Project.StateDir),
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = detect.DefaultRegistry(m.logger)
	}

	m.backups = backup.NewManager(m.state.BackupsDir(),
		backup.WithLogger(m.logger),
		backup.WithMetrics(m.metrics),
		backup.WithHistoryLimit(cfg.Backup.HistoryLimit),
		backup.WithClock(m.now))
	m.injector = inject.New(m.backups,
		inject.WithLogger(m.logger),
		inject.WithMetrics(m.metrics))
	return m, nil
}

// Paths returns the state directory layout
func (m *Manager) Paths() paths.State { return m.state }

// Backups returns the snapshot manager
func (m *Manager) Backups() *backup.Manager { return m.backups }

// Injector returns the injector
func (m *Manager) Injector() *inject.Injector { return m.injector }

// LogPath returns the log store file
func (m *Manager) LogPath() string { return m.state.LogPath(m.cfg.Store.LogFile) }

// Load reads the state record
func (m *Manager) Load() (*State, error) {
	return readState(m.state.ConfigPath())
}

// Codec returns the record codec configured for this project
func (m *Manager) Codec() *logrecord.Codec {
	return logrecord.NewCodec(
		logrecord.WithMaxLineBytes(m.cfg.Store.MaxLineBytes),
		logrecord.WithExcerptLimit(m.cfg.Store.BodyExcerptLimit))
}

// OpenStore opens the project's log store. Read-only stores create nothing.
func (m *Manager) OpenStore(readOnly bool) (*logstore.Store, error) {
	opts := []logstore.Option{
		logstore.WithCodec(m.Codec()),
		logstore.WithSync(m.cfg.Store.SyncEachAppend),
		logstore.WithLogger(m.logger),
		logstore.WithMetrics(m.metrics),
	}
	if readOnly {
		opts = append(opts, logstore.ReadOnly())
	}
	return logstore.Open(m.LogPath(), opts...)
}

// OpenIndex builds the correlation index over store, from the checkpoint
// when enabled and usable
func (m *Manager) OpenIndex(ctx context.Context, store *logstore.Store) (*index.Index, error) {
	opts := []index.Option{index.WithLogger(m.logger), index.WithMetrics(m.metrics)}
	if m.cfg.Index.Checkpoint {
		opts = append(opts, index.WithCheckpoint(m.state.CheckpointPath()))
	}

	ix := index.New(store, opts...)
	src, err := ix.Load(ctx)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("Index ready", zap.String("source", string(src)), zap.Int("records", ix.Len()))
	return ix, nil
}

// InitOptions controls Init
type InitOptions struct {
	// Apply performs the injections; otherwise Init only reports the plan
	Apply bool
	// Force re-applies on an initialized project
	Force bool
}

// Planned is one injection Init will make or has made
type Planned struct {
	Injection
	Action inject.Action // empty for a dry run
}

// InitResult reports what Init detected and did
type InitResult struct {
	Info      *detect.ProjectInfo
	Planned   []Planned
	Skipped   []string
	Generated []string
	Applied   bool
}

type step struct {
	injection Injection
	path      string
	payload   string
	position  inject.Positioner
	module    string
	source    string
}

// Init detects frameworks and, with Apply, instruments the project. When any
// injection fails, the ones already made are rolled back and no state is
// saved. Monitoring starts stopped.
func (m *Manager) Init(ctx context.Context, opts InitOptions) (*InitResult, error) {
	prev, err := m.Load()
	switch {
	case err == nil && opts.Apply && !opts.Force:
		return nil, ErrAlreadyInitialized
	case err != nil && !errors.Is(err, ErrNotInitialized):
		return nil, err
	}

	info, err := m.registry.Detect(ctx, m.state.Root)
	if err != nil {
		return nil, err
	}

	res := &InitResult{Info: info}
	steps, err := m.plan(info, res)
	if err != nil {
		return res, err
	}
	for _, s := range steps {
		res.Planned = append(res.Planned, Planned{Injection: s.injection})
	}
	if len(steps) == 0 {
		return res, ErrNothingToInject
	}
	if !opts.Apply {
		return res, nil
	}

	_, statErr := os.Stat(m.state.Dir)
	createdDir := errors.Is(statErr, fs.ErrNotExist)

	var applied []*inject.Result
	fail := func(cause error) (*InitResult, error) {
		rollbackErr := m.rollback(applied)
		if rollbackErr != nil || errors.Is(cause, backup.ErrRestoreFailed) {
			// Snapshots hold the only copy of what could not be put back
			kept := fmt.Errorf("original content kept in %s", m.state.BackupsDir())
			m.logger.Error("Init rollback incomplete", zap.String("backups", m.state.BackupsDir()))
			return res, errors.Join(cause, rollbackErr, kept)
		}
		if createdDir {
			_ = os.RemoveAll(m.state.Dir)
		}
		return res, cause
	}

	for _, dir := range m.state.StandardDirectories() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fail(fmt.Errorf("create %s: %w", dir, err))
		}
	}

	for _, s := range steps {
		if s.module == "" {
			continue
		}
		if err := utils.WriteFileAtomic(s.module, []byte(s.source), 0o644); err != nil {
			return fail(fmt.Errorf("write %s: %w", s.module, err))
		}
		res.Generated = appendUnique(res.Generated, m.state.Relative(s.module))
	}

	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		r, err := m.injector.Apply(s.path, s.injection.Marker, s.payload, inject.At(s.position))
		if err != nil {
			return fail(fmt.Errorf("inject %s: %w", s.injection.Path, err))
		}
		applied = append(applied, r)
		res.Planned[i].Action = r.Action
	}

	now := m.now().UTC()
	st := &State{
		Version:   StateVersion,
		Project:   info,
		Generated: res.Generated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, s := range steps {
		st.Injections = append(st.Injections, s.injection)
	}
	if prev != nil {
		st.CreatedAt = prev.CreatedAt
		// Keep blocks from an earlier init that this one did not touch, so clean still finds them
		for _, old := range prev.Injections {
			if !slices.ContainsFunc(st.Injections, func(in Injection) bool {
				return in.Path == old.Path && in.Marker == old.Marker
			}) {
				st.Injections = append(st.Injections, old)
			}
		}
	}

	if err := removeIfExists(m.state.EnabledPath()); err != nil {
		return fail(err)
	}
	if err := writeState(m.state.ConfigPath(), st); err != nil {
		return fail(err)
	}

	res.Applied = true
	m.logger.Info("Project initialized",
		zap.String("root", m.state.Root),
		zap.String("type", string(info.Type)),
		zap.Int("injections", len(steps)))
	return res, nil
}

func (m *Manager) plan(info *detect.ProjectInfo, res *InitResult) ([]step, error) {
	params := templates.Params{
		GeneratedDir: m.state.GeneratedDir(),
		LogPath:      m.LogPath(),
		EnabledPath:  m.state.EnabledPath(),
		ExcerptLimit: m.cfg.Store.BodyExcerptLimit,
		MaxLineBytes: m.cfg.Store.MaxLineBytes,
	}

	var steps []step
	for _, f := range info.Findings() {
		if f.Entry == "" {
			res.Skipped = append(res.Skipped, fmt.Sprintf("%s: no entry file found", f.Framework))
			continue
		}

		s := step{
			path: f.Entry,
			injection: Injection{
				Path:      filepath.ToSlash(m.state.Relative(f.Entry)),
				Marker:    templates.Marker(f.Kind),
				Framework: f.Framework,
			},
		}

		var err error
		switch f.Kind {
		case detect.Frontend:
			s.payload, err = templates.Interceptor(params)
			s.position = inject.DefaultPosition()
		case detect.Backend:
			p := params
			p.AppVar = f.AppVar
			constructor := m.constructor(f.Framework)
			if constructor == nil {
				res.Skipped = append(res.Skipped, fmt.Sprintf("%s: no application constructor pattern", f.Framework))
				continue
			}
			s.position = inject.AfterStatement(constructor)
			s.module = filepath.Join(m.state.GeneratedDir(), templates.MiddlewareModule)
			if s.source, err = templates.Middleware(f.Framework, p); err == nil {
				s.payload, err = templates.Bootstrap(f.Framework, p)
			}
		}
		if err != nil {
			return nil, err
		}

		s.payload = templates.Payload(s.payload)
		s.injection.Position = inject.PositionNames(s.position)
		steps = append(steps, s)
	}
	return steps, nil
}

func (m *Manager) constructor(fw detect.Framework) *regexp.Regexp {
	for _, d := range m.registry.Detectors() {
		if pd, ok := d.(*detect.PythonDetector); ok && pd.Name() == fw {
			return pd.Constructor
		}
	}
	return nil
}

// rollback restores every applied file to its pre-apply snapshot, newest first
func (m *Manager) rollback(applied []*inject.Result) error {
	var errs []error
	for i := len(applied) - 1; i >= 0; i-- {
		r := applied[i]
		if r.Action == inject.Unchanged || r.Snapshot == nil {
			continue
		}
		if err := m.backups.Restore(r.Snapshot); err != nil {
			m.logger.Error("Rollback failed", zap.String("path", r.Path), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start turns logging on
func (m *Manager) Start() (*State, error) { return m.setMonitoring(true) }

// Stop turns logging off
func (m *Manager) Stop() (*State, error) { return m.setMonitoring(false) }

func (m *Manager) setMonitoring(on bool) (*State, error) {
	st, err := m.Load()
	if err != nil {
		return nil, err
	}

	flag := m.state.EnabledPath()
	if on {
		err = utils.WriteFileAtomic(flag, nil, 0o644)
	} else {
		err = removeIfExists(flag)
	}
	if err != nil {
		return nil, fmt.Errorf("toggle monitoring: %w", err)
	}

	st.Monitoring = on
	st.UpdatedAt = m.now().UTC()
	if err := writeState(m.state.ConfigPath(), st); err != nil {
		// Put the flag back the way the record still describes it
		if on {
			_ = removeIfExists(flag)
		} else {
			_ = utils.WriteFileAtomic(flag, nil, 0o644)
		}
		return nil, err
	}

	m.logger.Info("Monitoring toggled", zap.Bool("enabled", on))
	return st, nil
}

// Status is a point-in-time report
type Status struct {
	State     *State
	Running   bool
	Log       logstore.Stats
	Snapshots int
}

// Status reads the state record and summarizes the log
func (m *Manager) Status() (*Status, error) {
	st, err := m.Load()
	if err != nil {
		return nil, err
	}

	_, flagErr := os.Stat(m.state.EnabledPath())
	status := &Status{State: st, Running: flagErr == nil}
	if status.Running != st.Monitoring {
		m.logger.Warn("Monitoring flag and state record disagree; trusting the flag",
			zap.Bool("flag", status.Running), zap.Bool("record", st.Monitoring))
	}

	store, err := m.OpenStore(true)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	if status.Log, err = store.Stats(); err != nil {
		return nil, err
	}

	snaps, err := m.backups.List()
	if err != nil {
		return nil, err
	}
	status.Snapshots = len(snaps)
	return status, nil
}

// CleanOptions controls Clean
type CleanOptions struct {
	// Restore puts back the oldest retained snapshot of each file instead of
	// removing only the blocks. Edits made after init are lost.
	Restore bool
}

// CleanResult lists what Clean did per file
type CleanResult struct {
	Removed      []string
	Restored     []string
	Missing      []string
	StateRemoved bool
}

// Clean takes every recorded injection out, then deletes the state
// directory. If any file could not be cleaned the state directory is kept so
// the command can be retried, and the failures are returned.
func (m *Manager) Clean(ctx context.Context, opts CleanOptions) (*CleanResult, error) {
	st, err := m.Load()
	if err != nil {
		return nil, err
	}

	res := &CleanResult{}
	var errs []error
	for i := len(st.Injections) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		in := st.Injections[i]
		if err := paths.ValidateRelative(filepath.FromSlash(in.Path)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", in.Path, err))
			continue
		}
		path := filepath.Join(m.state.Root, filepath.FromSlash(in.Path))

		if opts.Restore {
			snap, err := m.backups.Baseline(path)
			if err == nil {
				err = m.backups.Restore(snap)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("restore %s: %w", in.Path, err))
				continue
			}
			res.Restored = appendUnique(res.Restored, in.Path)
			continue
		}

		_, err := m.injector.Remove(path, in.Marker)
		switch {
		case err == nil:
			res.Removed = append(res.Removed, in.Path)
		case errors.Is(err, inject.ErrMarkerNotFound), errors.Is(err, fs.ErrNotExist):
			res.Missing = append(res.Missing, in.Path)
			m.logger.Warn("Injection already gone", zap.String("path", in.Path), zap.String("marker", in.Marker))
		default:
			errs = append(errs, fmt.Errorf("remove %s from %s: %w", in.Marker, in.Path, err))
		}
	}

	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}

	if err := os.RemoveAll(m.state.Dir); err != nil {
		return res, fmt.Errorf("remove state directory: %w", err)
	}
	res.StateRemoved = true
	m.logger.Info("Integration removed", zap.String("root", m.state.Root))
	return res, nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func appendUnique(list []string, s string) []string {
	if slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}
