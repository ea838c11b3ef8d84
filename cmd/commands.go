package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/guttosm/marketpulse/config"
	"github.com/guttosm/marketpulse/internal/app"
	"github.com/guttosm/marketpulse/internal/ingestion"
	"github.com/guttosm/marketpulse/internal/logger"
)

// newRootCmd builds the CLI. Configuration and logging are initialized before any subcommand runs.
//
// Subcommands:
//   - api:     REST API (queries, on-demand ingestion, job submission).
//   - worker:  scheduled ingestion plus the background job pool.
//   - ingest:  one ingestion run, report printed as JSON.
//   - import:  CSV backfill of historical bars.
//   - migrate: apply database migrations and exit.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "marketpulse",
		Short:         "Market data ingestion and background job service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.LoadConfig()
			logger.Init()
		},
	}

	root.AddCommand(newAPICmd(), newWorkerCmd(), newIngestCmd(), newImportCmd(), newMigrateCmd())
	return root
}

func newAPICmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == "" {
				port = config.AppConfig.Server.Port
			}
			logger.L().Info().Msg("starting API server")

			router, cleanup, err := app.InitializeApp()
			if err != nil {
				return fmt.Errorf("app init: %w", err)
			}

			server := startServer(router, port)
			gracefulShutdown(context.Background(), server, cleanup)
			return nil
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "port for the API server (default SERVER_PORT)")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run scheduled ingestion and drain the job queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == "" {
				port = config.AppConfig.Server.WorkerPort
			}
			logger.L().Info().Msg("starting worker")

			w, cleanup, err := app.InitializeWorker()
			if err != nil {
				return fmt.Errorf("worker init: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := startServer(w.Router, port)
			runErr := w.Run(ctx)
			shutdown(context.Background(), server, cleanup)
			return runErr
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "port for worker health and metrics (default WORKER_PORT)")
	return cmd
}

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [SYMBOL...]",
		Short: "Run one ingestion for the given symbols (default set when none) and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, cleanup, err := app.InitializeCore()
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := core.Scheduler.Trigger(cmd.Context(), args)
			if err != nil {
				return fmt.Errorf("ingestion: %w", err)
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if len(report.Succeeded) == 0 && len(report.Failed) > 0 {
				return fmt.Errorf("all %d symbols failed", len(report.Failed))
			}
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	var (
		force bool
		batch int
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Backfill historical bars from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, cleanup, err := app.InitializeCore()
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := ingestion.ImportFile(cmd.Context(), args[0], core.Store, batch, force)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "re-import a file already recorded in the import log")
	cmd.Flags().IntVar(&batch, "batch", 500, "rows per upsert batch")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := app.InitPostgres(config.AppConfig)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := app.Migrate(db); err != nil {
				return err
			}
			logger.L().Info().Msg("migrations applied")
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
