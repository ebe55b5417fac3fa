// Package cli exposes the dvdrental binary's commands.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/desco95/dvdrental/internal/config"
	"github.com/desco95/dvdrental/internal/observability"
	"github.com/desco95/dvdrental/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel string // overrides LOG_LEVEL when set
}

// NewRootCommand creates the root command for the dvdrental CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dvdrental",
		Short: "DVD rental ledger",
		Long:  "Rental lifecycle and inventory allocation engine for a DVD rental store.",
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))

	return cmd
}

// bootstrap bundles what every command needs before touching the ledger.
type bootstrap struct {
	cfg    config.Config
	logger *zap.Logger
}

func loadRuntime(opts *RootOptions) (bootstrap, error) {
	cfg, err := config.Load()
	if err != nil {
		return bootstrap{}, fmt.Errorf("config: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return bootstrap{}, fmt.Errorf("logger: %w", err)
	}
	return bootstrap{cfg: cfg, logger: logger}, nil
}

func openStore(ctx context.Context, rt bootstrap) (*store.Store, error) {
	cfg := rt.cfg
	dbCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.DBConnTimeoutSecs)*time.Second)
	defer cancel()

	st, err := store.New(dbCtx, cfg.DatabaseURL(), storeOptions(cfg, rt.logger))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return st, nil
}

func storeOptions(cfg config.Config, logger *zap.Logger) store.Options {
	return store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		TxTimeout:              cfg.TxTimeout(),
		Logger:                 logger,
	}
}
