// Package cli implements the apidiag command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/api-diagnostics/internal/domain/project"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/config"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/logging"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/monitoring"
)

// Version is set at build time
var Version = "dev"

// app carries what every command needs, filled in before any command runs
type app struct {
	dir      string
	stateDir string
	logLevel string
	dev      bool

	cfg     *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// NewRoot builds the command tree
func NewRoot() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "apidiag",
		Short:         "Correlate API requests and errors across frontend and backend",
		Long:          "apidiag instruments React, FastAPI and Flask projects so every request carries a correlation id, records each request and error to a local log, and lets you find everything that happened to one request.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.dir, "dir", "C", ".", "Project directory")
	flags.StringVar(&a.stateDir, "state-dir", "", "State directory, relative to the project (env APIDIAG_STATE_DIR)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug|info|warn|error (env LOG_LEVEL)")
	flags.BoolVar(&a.dev, "dev", false, "Human-readable development logging")

	root.AddCommand(
		newInitCommand(a),
		newStartCommand(a),
		newStopCommand(a),
		newStatusCommand(a),
		newSearchCommand(a),
		newErrorsCommand(a),
		newRecentCommand(a),
		newQueryCommand(a),
		newRestoreCommand(a),
		newServeCommand(a),
		newCleanCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.stateDir != "" {
		cfg.Project.StateDir = a.stateDir
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if cmd.Flags().Changed("dev") {
		cfg.Logging.Development = a.dev
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Development = cfg.Logging.Development
	logCfg.Output = cmd.ErrOrStderr()
	logger, err := logging.New(logCfg)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.metrics = monitoring.NewMetrics()
	return nil
}

// manager opens the lifecycle manager for dir, or the --dir project when empty
func (a *app) manager(dir string) (*project.Manager, error) {
	if dir == "" {
		dir = a.dir
	}
	return project.NewManager(dir, a.cfg,
		project.WithLogger(a.logger.Logger),
		project.WithMetrics(a.metrics))
}

// Execute runs the CLI and returns the process exit code
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRoot()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", describe(err))
		return 1
	}
	return 0
}

// describe turns well-known failures into a hint the user can act on
func describe(err error) string {
	switch {
	case errors.Is(err, project.ErrNotInitialized):
		return "project is not initialized; run 'apidiag init --auto' first"
	case errors.Is(err, project.ErrAlreadyInitialized):
		return "project is already initialized; use --force to re-apply"
	case errors.Is(err, os.ErrPermission):
		return err.Error() + " (check file permissions)"
	}
	return err.Error()
}
