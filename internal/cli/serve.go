package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/desco95/dvdrental/internal/events"
	httpserver "github.com/desco95/dvdrental/internal/http"
	"github.com/desco95/dvdrental/internal/observability"
	"github.com/desco95/dvdrental/internal/rental"
	"github.com/desco95/dvdrental/internal/report"
	"github.com/desco95/dvdrental/internal/repository"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	Port    string
	Migrate bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Run the rental HTTP API",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Port, "port", "p", "", "listen port (overrides PORT)")
	cmd.Flags().BoolVar(&opts.Migrate, "migrate", false, "apply migrations before serving")

	return cmd
}

func runServe(parent context.Context, rootOpts *RootOptions, opts *ServeOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := loadRuntime(rootOpts)
	if err != nil {
		return err
	}
	defer func() { _ = rt.logger.Sync() }()
	cfg := rt.cfg
	if opts.Port != "" {
		cfg.Port = opts.Port
	}
	logger := rt.logger

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	st, err := openStore(ctx, rt)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.Migrate {
		if err := st.Migrate(ctx); err != nil {
			return err
		}
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.KafkaBrokers != "" {
		publisher = events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), logger)
		logger.Info("events: publishing to kafka",
			zap.String("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("events: close publisher", zap.Error(err))
		}
	}()

	repo := repository.New(st)
	rentals := rental.NewService(st, repo, rental.Options{Publisher: publisher, Logger: logger})
	reports := report.NewAggregator(st, repo, report.Options{Logger: logger})
	server := httpserver.New(cfg, st, rentals, reports, logger)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	var serveErr error
	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			serveErr = err
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("graceful shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
	return serveErr
}
