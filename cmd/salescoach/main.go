package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	audioimpl "github.com/foxseedlab/salescoach/external/audio"
	analyzerimpl "github.com/foxseedlab/salescoach/external/analyzer"
	configloader "github.com/foxseedlab/salescoach/external/config"
	transcriberimpl "github.com/foxseedlab/salescoach/external/transcriber"
	webhookimpl "github.com/foxseedlab/salescoach/external/webhook"
	"github.com/foxseedlab/salescoach/internal/coach"
	"github.com/foxseedlab/salescoach/internal/config"
	"github.com/foxseedlab/salescoach/internal/metrics"
	"github.com/foxseedlab/salescoach/internal/sample"
	"github.com/foxseedlab/salescoach/internal/session"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

var (
	envFile  string
	cfg      *config.Config
	injector do.Injector
)

var rootCmd = &cobra.Command{
	Use:           "salescoach",
	Short:         "Live sales call transcription and coaching",
	Long:          "Captures microphone audio, streams it to a speech transcription service and turns the finished transcript into coaching feedback.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		slog.Info("startup: loading configuration")
		var err error
		cfg, err = loadConfig()
		if err != nil {
			return err
		}
		initLogger(cfg)
		slog.Info("startup: configuration loaded", "env", cfg.Env, "provider", cfg.TranscriberProvider)

		slog.Info("startup: building dependency graph")
		injector = setupDI(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment (default .env)")
	rootCmd.AddCommand(recordCmd, demoCmd, samplesCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if envFile != "" {
		return configloader.Load(envFile)
	}
	return configloader.Load()
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, metrics.New())
	do.Provide(injector, func(do.Injector) (*sample.Library, error) {
		return sample.Load()
	})
	audioimpl.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	analyzerimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	coach.RegisterDI(injector)
	session.RegisterDI(injector)

	return injector
}

func startMetrics(ctx context.Context) {
	if cfg.MetricsAddr == "" {
		return
	}
	m := do.MustInvoke[*metrics.Metrics](injector)
	go func() {
		if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
			slog.Error("metrics server failed", "addr", cfg.MetricsAddr, "error", err)
		}
	}()
}
