package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/api-diagnostics/internal/client"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/logrecord"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/search"
)

// source answers queries either from the local log or from a query server
type source interface {
	Correlation(ctx context.Context, id string) ([]logrecord.Record, error)
	Errors(ctx context.Context, class string) ([]logrecord.Record, error)
	Recent(ctx context.Context, d time.Duration) ([]logrecord.Record, error)
	Query(ctx context.Context, filter string) ([]logrecord.Record, error)
}

type localSource struct {
	engine *search.Engine
}

func (s localSource) Correlation(_ context.Context, id string) ([]logrecord.Record, error) {
	return s.engine.ByCorrelation(id), nil
}

func (s localSource) Errors(_ context.Context, class string) ([]logrecord.Record, error) {
	return s.engine.Errors(class)
}

func (s localSource) Recent(_ context.Context, d time.Duration) ([]logrecord.Record, error) {
	return s.engine.Recent(d)
}

func (s localSource) Query(_ context.Context, filter string) ([]logrecord.Record, error) {
	return s.engine.Filter(filter)
}

// queryFlags are shared by every query command
type queryFlags struct {
	server string
	json   bool
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.server, "server", "", "Query a running 'apidiag serve' at this URL instead of the local log")
	cmd.Flags().BoolVar(&f.json, "json", false, "Print records as JSON")
}

// withSource opens the query source and runs fn against it
func (a *app) withSource(ctx context.Context, f *queryFlags, fn func(source) ([]logrecord.Record, error)) ([]logrecord.Record, error) {
	if f.server != "" {
		c, err := client.New(f.server, client.DefaultConfig())
		if err != nil {
			return nil, err
		}
		return fn(c)
	}

	m, err := a.manager("")
	if err != nil {
		return nil, err
	}
	store, err := m.OpenStore(true)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	ix, err := m.OpenIndex(ctx, store)
	if err != nil {
		return nil, err
	}
	if a.cfg.Index.Checkpoint {
		if _, err := m.Load(); err == nil {
			if err := ix.Save(ctx); err != nil {
				a.logger.Warn("Could not save index checkpoint", zap.Error(err))
			}
		}
	}

	engine := search.New(ix, search.WithLogger(a.logger.Logger), search.WithMetrics(a.metrics))
	return fn(localSource{engine: engine})
}

func printRecords(out io.Writer, records []logrecord.Record, asJSON, detailed bool) error {
	if asJSON {
		data, err := sonic.ConfigStd.MarshalIndent(records, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	for i, r := range records {
		if detailed {
			if i > 0 {
				fmt.Fprintln(out, strings.Repeat("-", 60))
			}
			fmt.Fprint(out, logrecord.FormatText(r))
			continue
		}
		fmt.Fprintf(out, "%s %s\n", r.Timestamp.Local().Format("15:04:05.000"), logrecord.FormatLine(r))
	}
	return nil
}

func newSearchCommand(a *app) *cobra.Command {
	var flags queryFlags

	cmd := &cobra.Command{
		Use:   "search <correlation-id>",
		Short: "Show everything recorded for one correlation id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			records, err := a.withSource(cmd.Context(), &flags, func(s source) ([]logrecord.Record, error) {
				return s.Correlation(cmd.Context(), id)
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 && !flags.json {
				fmt.Fprintf(out, "No log entries found for correlation ID: %s\n", id)
				return nil
			}
			if !flags.json {
				fmt.Fprintf(out, "Found %d log entries for correlation ID: %s\n\n", len(records), id)
			}
			return printRecords(out, records, flags.json, true)
		},
	}
	flags.register(cmd)
	return cmd
}

func newErrorsCommand(a *app) *cobra.Command {
	var flags queryFlags

	cmd := &cobra.Command{
		Use:   "errors [4xx|5xx]",
		Short: "List recorded client or server errors",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var class string
			if len(args) == 1 {
				class = args[0]
			}
			records, err := a.withSource(cmd.Context(), &flags, func(s source) ([]logrecord.Record, error) {
				return s.Errors(cmd.Context(), class)
			})
			if err != nil {
				return err
			}
			return report(cmd.OutOrStdout(), records, flags.json)
		},
	}
	flags.register(cmd)
	return cmd
}

func newRecentCommand(a *app) *cobra.Command {
	var (
		flags  queryFlags
		within time.Duration
	)

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List records from the last while",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := a.withSource(cmd.Context(), &flags, func(s source) ([]logrecord.Record, error) {
				return s.Recent(cmd.Context(), within)
			})
			if err != nil {
				return err
			}
			return report(cmd.OutOrStdout(), records, flags.json)
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVar(&within, "within", 15*time.Minute, "How far back to look")
	return cmd
}

func newQueryCommand(a *app) *cobra.Command {
	var flags queryFlags

	cmd := &cobra.Command{
		Use:   "query <expression>",
		Short: "Filter records with a CEL expression",
		Long: "Filters records with a CEL expression over: timestamp, ts_ms, now_ms, level, correlation_id, " +
			"endpoint, method, status_code, error_message, has_error, stack_file, stack_line, body_excerpt.\n\n" +
			"Example: apidiag query 'status_code >= 500 && endpoint.startsWith(\"/api/orders\")'",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := strings.Join(args, " ")
			records, err := a.withSource(cmd.Context(), &flags, func(s source) ([]logrecord.Record, error) {
				return s.Query(cmd.Context(), expr)
			})
			if err != nil {
				return err
			}
			return report(cmd.OutOrStdout(), records, flags.json)
		},
	}
	flags.register(cmd)
	return cmd
}

func report(out io.Writer, records []logrecord.Record, asJSON bool) error {
	if len(records) == 0 && !asJSON {
		fmt.Fprintln(out, "No log entries found")
		return nil
	}
	return printRecords(out, records, asJSON, false)
}
