package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"alertrelay/internal/config"
	"alertrelay/internal/constants"
	"alertrelay/internal/logger"
	"alertrelay/internal/pipeline"
	"alertrelay/pkg/logging"
)

var (
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          constants.ServiceName,
		Short:        "Mailbox alert relay",
		Long:         "Reads telemetry alert mail, extracts and classifies events, and delivers each one to the collector exactly once",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (falls back to CONFIG_FILE, then environment only)")

	rootCmd.AddCommand(serveCmd(), scanCmd(), backfillCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrapApp loads configuration and the logger, then initializes an App for target.
// The returned cleanup shuts the App down and flushes the logger.
func bootstrapApp(ctx context.Context, target string) (*App, func(), error) {
	earlyLog := logging.NewEarlyLog()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return nil, nil, err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		earlyLog.Error("Failed to init logger: %v", err)
		return nil, nil, err
	}

	app := NewApp(cfg, log)
	if err := app.Initialize(ctx, target); err != nil {
		log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
		_ = app.Shutdown(context.Background())
		_ = log.Sync()
		return nil, nil, err
	}

	cleanup := func() {
		if err := app.Shutdown(context.Background()); err != nil {
			log.Errorw("Shutdown failed", "error", err)
		}
		_ = log.Sync()
	}
	return app, cleanup, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the duty-cycle scheduler and the ops server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			app, cleanup, err := bootstrapApp(ctx, pipeline.TargetAlerts)
			if err != nil {
				return err
			}
			defer cleanup()

			app.Logger.InfowCtx(ctx, "Service running")
			if err := app.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				app.Logger.ErrorwCtx(ctx, "Service stopped with error", "error", err)
				return err
			}
			app.Logger.InfowCtx(ctx, "Service shutdown complete")
			return nil
		},
	}
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run a single scan cycle over the configured lookback and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			app, cleanup, err := bootstrapApp(ctx, pipeline.TargetAlerts)
			if err != nil {
				return err
			}
			defer cleanup()

			_, err = app.ScanOnce(ctx)
			return err
		},
	}
}
