package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/gorpcd/internal/echo"
	"github.com/marmos91/gorpcd/internal/logger"
	"github.com/marmos91/gorpcd/pkg/config"
	"github.com/marmos91/gorpcd/pkg/metrics"
	"github.com/marmos91/gorpcd/pkg/metrics/prometheus"
	"github.com/marmos91/gorpcd/rpc/server"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gorpcd server",
	Long: `Start the gorpcd server with the specified configuration, binding
every configured endpoint and serving the example echo service.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/gorpcd/config.yaml.`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
		metricsErrCh := make(chan error, 1)
		metricsServer.Start(metricsErrCh)
		logger.Info("metrics server listening", "port", cfg.Metrics.Port)
		go func() {
			if err := <-metricsErrCh; err != nil {
				logger.Error("metrics server error", logger.Err(err))
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer shutdownCancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown error", logger.Err(err))
			}
		}()
	}

	srv := server.New(echo.New())
	srv.SetMaxFrameSize(cfg.MaxFrameSize)
	if cfg.Metrics.Enabled {
		srv.SetMetrics(prometheus.NewRuntimeMetrics())
	}
	for _, ep := range cfg.Endpoints {
		if err := srv.Bind(ep); err != nil {
			return fmt.Errorf("failed to bind %s: %w", ep, err)
		}
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx, cfg.NumWorkers, 0)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("gorpcd is running", "endpoints", cfg.Endpoints, "num_workers", cfg.NumWorkers)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, stopping server")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("server stopped with error", logger.Err(err))
			return err
		}
		logger.Info("server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", logger.Err(err))
			return err
		}
		logger.Info("server stopped")
	}

	return nil
}
