package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/livescribe/internal/app"
	"github.com/MrWong99/livescribe/internal/config"
	"github.com/MrWong99/livescribe/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

type serveFlags struct {
	noWatch       bool
	watchInterval time.Duration
}

func newServeCmd(global *globalFlags) *cobra.Command {
	flags := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		Long: `serve starts the HTTP API: session control, raw audio ingest, the
/v1/stream WebSocket, transcript polling, the optional archive, health
checks and Prometheus metrics. The config file is watched and the log level
and detector options are applied without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), global.configPath, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.noWatch, "no-watch", false, "do not reload the config file on change")
	cmd.Flags().DurationVar(&flags.watchInterval, "watch-interval", config.DefaultWatchInterval, "config file polling interval")
	return cmd
}

func runServe(parent context.Context, configPath string, flags *serveFlags) error {
	e, err := setup(configPath)
	if err != nil {
		return err
	}
	defer e.close()
	cfg := e.cfg

	slog.Info("livescribe starting",
		"version", version,
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"stt", cfg.Providers.STT.Name,
		"translate", cfg.Providers.Translate.Name,
		"languages", cfg.Languages.Source+"->"+cfg.Languages.Target,
	)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "livescribe",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	application, err := app.New(ctx, cfg, e.providers, app.WithLogLevel(e.level))
	if err != nil {
		return err
	}

	if !flags.noWatch {
		w, err := config.NewWatcher(configPath, application.ApplyConfig, config.WithInterval(flags.watchInterval))
		if err != nil {
			slog.Warn("config hot-reload disabled", "err", err)
		} else {
			defer w.Stop()
			slog.Info("watching config for changes", "path", configPath, "interval", flags.watchInterval)
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	slog.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}
