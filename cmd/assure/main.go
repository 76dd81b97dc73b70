package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/teilomillet/assure/config"
	"github.com/teilomillet/assure/errors"
	"github.com/teilomillet/assure/logging"
	"github.com/teilomillet/assure/server"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "assure.yaml", "Path to configuration file")
	envFile    = flag.String("env", ".env", "Path to an optional dotenv file")
	validate   = flag.Bool("validate", false, "Validate configuration and exit")
	version    = flag.Bool("version", false, "Print version and exit")
)

const Version = "v0.1.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("assure %s\n", Version)
		os.Exit(0)
	}

	// Variables already set in the environment win over the dotenv file.
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.LoadFileOrDefault(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *validate {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	logger, level, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Critical error: Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		// stderr sync fails on some platforms; nothing useful can be done
		_ = logger.Sync()
	}()
	errors.SetLogger(logger)

	if err := run(cfg, logger, level); err != nil {
		logger.Fatal("server startup or runtime error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger, level zap.AtomicLevel) error {
	watcher, err := newWatcher(cfg, logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	srv, err := server.NewServer(watcher, logger, server.WithLogLevel(level))
	if err != nil {
		return fmt.Errorf("server initialization failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received", zap.String("action", "initiating graceful shutdown"))
	}()

	logger.Info("starting assure",
		zap.String("version", Version),
		zap.Int("port", cfg.Server.Port),
		zap.String("config", *configFile),
	)
	return srv.Start(ctx)
}

// newWatcher hot-reloads the config file when there is one; runs on
// defaults get a static configuration.
func newWatcher(cfg *config.Config, logger *zap.Logger) (config.Watcher, error) {
	if _, err := os.Stat(*configFile); os.IsNotExist(err) {
		logger.Info("no config file found, using defaults", zap.String("config", *configFile))
		return config.NewStaticWatcher(cfg), nil
	}
	watcher, err := config.NewConfigWatcher(*configFile, logger)
	if err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}
	return watcher, nil
}
