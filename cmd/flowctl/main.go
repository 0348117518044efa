// Command flowctl runs maintenance tasks against the helpdesk database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/flow-helpdesk/internal/app"
	"github.com/spec-kit/flow-helpdesk/internal/config"
	"github.com/spec-kit/flow-helpdesk/internal/observability"
	"github.com/spec-kit/flow-helpdesk/internal/persistence"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "flowctl",
	Short:         "Maintenance commands for the FLOW helpdesk",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger, err = observability.NewLogger(cfg.Logger)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "flowctl:", err)
		os.Exit(1)
	}
}

// session is an opened database plus the wired services.
type session struct {
	pg  *persistence.Postgres
	app *app.App
}

func (s *session) Close() {
	if s.app != nil {
		_ = s.app.Drain(context.Background())
	}
	s.pg.Close()
	_ = logger.Sync()
}

// openSession connects to Postgres. Maintenance commands never run against memory storage.
func openSession(ctx context.Context) (*session, error) {
	if cfg.Postgres.DSN == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	helpdesk, err := app.New(app.Dependencies{
		Config:  cfg,
		Store:   repository.NewPostgresStore(pg.PoolHandle()),
		Logger:  logger,
		Metrics: observability.NewMetrics(),
		Storage: "postgres",
		Source:  app.BigQuerySource(cfg.BigQuery),
	})
	if err != nil {
		pg.Close()
		return nil, err
	}
	return &session{pg: pg, app: helpdesk}, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
