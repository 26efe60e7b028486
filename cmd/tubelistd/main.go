// Package main provides the tubelistd daemon entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"tubelist/internal/core"
	"tubelist/internal/dedup"
	httpserver "tubelist/internal/http"
	"tubelist/internal/persist"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tubelistd",
	Short: "tubelistd - normalized playlist and play-queue engine",
	Long: `tubelistd maintains normalized playlist, video and play-queue tables with
snippet-identity dedup, cascade deletes and derived in-playing labels, and
serves read-only views and metrics over HTTP.`,
	RunE: runTubelistd,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, console)")
	rootCmd.PersistentFlags().String("server-host", "0.0.0.0", "HTTP server host")
	rootCmd.PersistentFlags().Int("server-port", 8080, "HTTP server port")
	rootCmd.PersistentFlags().String("snapshot-path", "./tubelist.db", "sqlite snapshot file (empty disables persistence)")
	rootCmd.PersistentFlags().Int("dedup-capacity", 10000, "snippet dedup index capacity")
	rootCmd.PersistentFlags().Float64("dedup-fp-rate", 0.001, "snippet dedup Bloom false positive rate")
	rootCmd.PersistentFlags().Int("fetch-max-pages", 5, "upstream pagination cap per source")
	rootCmd.PersistentFlags().Float64("fetch-rps", 4, "upstream requests per second")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}
	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix("TUBELIST")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Snapshot.Path = viper.GetString("snapshot-path")
	cfg.Log.Level = viper.GetString("log-level")
	if format := viper.GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}

	cfg.Dedup.Capacity = viper.GetInt("dedup-capacity")
	if cfg.Dedup.Capacity <= 0 {
		cfg.Dedup.Capacity = core.DefaultConfig().Dedup.Capacity
	}
	cfg.Dedup.FalsePositiveRate = viper.GetFloat64("dedup-fp-rate")
	if cfg.Dedup.FalsePositiveRate <= 0 || cfg.Dedup.FalsePositiveRate >= 1 {
		cfg.Dedup.FalsePositiveRate = core.DefaultConfig().Dedup.FalsePositiveRate
	}

	cfg.Fetch.MaxPages = viper.GetInt("fetch-max-pages")
	cfg.Fetch.RequestsPerSecond = viper.GetFloat64("fetch-rps")

	return cfg
}

func buildLogger(logCfg core.LogConfig) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(logCfg.Level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if strings.ToLower(logCfg.Format) == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}
	return builtLogger
}

func runTubelistd(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting tubelistd",
		zap.String("snapshot_path", config.Snapshot.Path),
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	var snapshots *persist.SnapshotStore
	initial := core.NewState()
	if config.Snapshot.Path != "" {
		var err error
		snapshots, err = persist.Open(config.Snapshot.Path, logger.Named("persist"))
		if err != nil {
			return err
		}
		defer snapshots.Close()

		initial, err = snapshots.Load(ctx)
		if err != nil {
			return fmt.Errorf("rehydrate snapshot: %w", err)
		}
		logger.Info("Snapshot rehydrated",
			zap.Int("playlists", len(initial.Playlists.Entities.Sources)),
			zap.Int("videos", len(initial.Videos.Entities.Sources)),
			zap.Int("queued", len(initial.Queue.Result)))
	}

	bus := core.NewBus()
	index := dedup.NewSnippetIndex(config.Dedup.Capacity, config.Dedup.FalsePositiveRate)
	dispatcher := core.NewDispatcher(initial, index, bus, logger.Named("dispatcher"))
	coordinator := core.NewCoordinator(dispatcher, bus, logger.Named("coordinator"))
	server := httpserver.NewServer(&config.Server, dispatcher, bus, logger.Named("http"), nil)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gCtx) })
	g.Go(func() error { return coordinator.Run(gCtx) })
	g.Go(func() error { return server.Start(gCtx) })

	logger.Info("tubelistd started successfully")

	err := g.Wait()
	bus.Close()

	if snapshots != nil {
		saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer saveCancel()
		if saveErr := snapshots.Save(saveCtx, dispatcher.Snapshot()); saveErr != nil {
			logger.Error("Failed to persist snapshot on shutdown", zap.Error(saveErr))
		} else {
			logger.Info("Snapshot persisted")
		}
	}

	if err != nil {
		logger.Error("tubelistd stopped with error", zap.Error(err))
		return err
	}
	logger.Info("tubelistd stopped gracefully")
	return nil
}
