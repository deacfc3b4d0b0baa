package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/api-diagnostics/internal/domain/detect"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/project"
)

func newInitCommand(a *app) *cobra.Command {
	var auto, force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Detect frameworks and instrument the project",
		Long: "Detects React, FastAPI and Flask in the project and shows the blocks that would be injected. " +
			"With --auto the blocks are applied; every touched file is snapshotted first.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dir string
			if len(args) == 1 {
				dir = args[0]
			}
			m, err := a.manager(dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			res, err := m.Init(cmd.Context(), project.InitOptions{Apply: auto, Force: force})
			switch {
			case errors.Is(err, project.ErrNoFrameworks):
				fmt.Fprintln(out, "No supported frameworks detected")
				return nil
			case errors.Is(err, project.ErrNothingToInject):
				printDetection(out, res)
				fmt.Fprintln(out, "Nothing to inject: no entry file found for the detected frameworks")
				return nil
			case err != nil:
				return err
			}

			printDetection(out, res)
			if !res.Applied {
				fmt.Fprintln(out, "Run 'apidiag init --auto' to apply.")
				return nil
			}
			for _, g := range res.Generated {
				fmt.Fprintf(out, "  generated %s\n", g)
			}
			fmt.Fprintln(out, "Automatic integration complete")
			fmt.Fprintln(out, "Run 'apidiag start' to begin monitoring.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&auto, "auto", false, "Apply the injections")
	cmd.Flags().BoolVar(&force, "force", false, "Re-apply on an already initialized project")
	return cmd
}

func printDetection(out io.Writer, res *project.InitResult) {
	if res == nil || res.Info == nil {
		return
	}
	var names []string
	for _, f := range res.Info.Findings() {
		names = append(names, string(f.Framework))
	}
	fmt.Fprintf(out, "Detected %s project (%s), package manager %s\n",
		res.Info.Type, strings.Join(names, ", "), res.Info.PackageManager)

	for _, p := range res.Planned {
		verb := "will inject"
		if p.Action != "" {
			verb = string(p.Action)
		}
		fmt.Fprintf(out, "  %-12s %s into %s\n", verb, p.Marker, p.Path)
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(out, "  skipped      %s\n", s)
	}
}

func newStartCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start recording requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.manager("")
			if err != nil {
				return err
			}
			if _, err := m.Start(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API diagnostics monitoring started")
			fmt.Fprintf(cmd.OutOrStdout(), "Logging to %s\n", m.LogPath())
			return nil
		},
	}
}

func newStopCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop recording requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.manager("")
			if err != nil {
				return err
			}
			if _, err := m.Stop(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API diagnostics monitoring stopped")
			return nil
		},
	}
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show monitoring state and log statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.manager("")
			if err != nil {
				return err
			}
			st, err := m.Status()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			state := "STOPPED"
			if st.Running {
				state = "RUNNING"
			}
			fmt.Fprintf(out, "Status:      %s\n", state)
			if info := st.State.Project; info != nil {
				fmt.Fprintf(out, "Project:     %s (%s)\n", info.Type, info.Root)
			}
			fmt.Fprintf(out, "Initialized: %s\n", st.State.CreatedAt.Local().Format(time.DateTime))
			fmt.Fprintf(out, "Log file:    %s\n", st.Log.Path)
			fmt.Fprintf(out, "Records:     %d (%d bytes", st.Log.Records, st.Log.Bytes)
			if st.Log.Failures > 0 {
				fmt.Fprintf(out, ", %d unreadable lines", st.Log.Failures)
			}
			fmt.Fprintln(out, ")")
			fmt.Fprintf(out, "Snapshots:   %d\n", st.Snapshots)
			fmt.Fprintln(out, "Injections:")
			for _, in := range st.State.Injections {
				fmt.Fprintf(out, "  %s in %s (%s)\n", in.Marker, in.Path, frameworkName(in.Framework))
			}
			return nil
		},
	}
}

func frameworkName(fw detect.Framework) string {
	if fw == "" {
		return "unknown"
	}
	return string(fw)
}

func newRestoreCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file>",
		Short: "Put a file back to its last snapshot",
		Long:  "Restores the file to the content it had right before apidiag last modified it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager("")
			if err != nil {
				return err
			}
			snap, err := m.Backups().RestorePath(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s from snapshot taken %s\n",
				m.Paths().Relative(snap.Path), snap.CreatedAt.Local().Format(time.DateTime))
			return nil
		},
	}
}

func newCleanCommand(a *app) *cobra.Command {
	var restore bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove every injection and the state directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.manager("")
			if err != nil {
				return err
			}
			res, err := m.Clean(cmd.Context(), project.CleanOptions{Restore: restore})

			out := cmd.OutOrStdout()
			if res != nil {
				for _, p := range res.Removed {
					fmt.Fprintf(out, "  removed block from %s\n", p)
				}
				for _, p := range res.Restored {
					fmt.Fprintf(out, "  restored %s\n", p)
				}
				for _, p := range res.Missing {
					fmt.Fprintf(out, "  already clean: %s\n", p)
				}
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Integration removed successfully")
			return nil
		},
	}
	cmd.Flags().BoolVar(&restore, "restore", false, "Restore original file contents from the oldest snapshot instead of removing blocks")
	return cmd
}
