package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/api-diagnostics/internal/server"
)

func newServeCommand(a *app) *cobra.Command {
	var host, port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve read-only queries over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if host != "" {
				a.cfg.Server.Host = host
			}
			if port != "" {
				a.cfg.Server.Port = port
			}

			m, err := a.manager("")
			if err != nil {
				return err
			}
			if _, err := m.Load(); err != nil {
				return err
			}
			store, err := m.OpenStore(true)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			ix, err := m.OpenIndex(ctx, store)
			if err != nil {
				return err
			}

			srv := server.New(a.cfg, store, ix, a.metrics, a.logger.Logger)
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", m.LogPath(), a.cfg.Server.Addr())
			if err := srv.Run(ctx); err != nil {
				return err
			}

			if a.cfg.Index.Checkpoint {
				if err := ix.Save(context.Background()); err != nil {
					a.logger.Warn("Could not save index checkpoint", zap.Error(err))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Listen host (env APIDIAG_HOST, default 127.0.0.1)")
	cmd.Flags().StringVar(&port, "port", "", "Listen port (env APIDIAG_PORT, default 8765)")
	return cmd
}
