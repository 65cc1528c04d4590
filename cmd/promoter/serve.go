package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"promoter/internal/history"
	"promoter/internal/server"

	"github.com/spf13/cobra"
)

var (
	logFile      string
	dbPath       string
	historyPath  string
	host         string
	port         int
	exposeErrors bool
	testMode     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the promotion API server",
	Long: `Start the HTTP server that accepts promotion and build import requests.

Settings come from the configuration file; flags and PROMOTER_* environment
variables override them.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&logFile, "log", getEnvOrDefault("PROMOTER_LOG_FILE", ""), "Path to log file")
	serveCmd.Flags().StringVar(&dbPath, "db", getEnvOrDefault("PROMOTER_DB_PATH", ""), "Path to the build registry database")
	serveCmd.Flags().StringVar(&historyPath, "history", getEnvOrDefault("PROMOTER_HISTORY_PATH", ""), "Path to the promotion history database")
	serveCmd.Flags().StringVar(&host, "host", getEnvOrDefault("PROMOTER_HOST", ""), "Host to bind to")
	serveCmd.Flags().IntVarP(&port, "port", "p", getEnvOrDefaultInt("PROMOTER_PORT", 0), "Port to listen on")
	serveCmd.Flags().BoolVar(&exposeErrors, "expose-errors", envBool("PROMOTER_EXPOSE_ERRORS"), "Return failure details to clients")
	serveCmd.Flags().BoolVar(&testMode, "test-mode", envBool("PROMOTER_TEST_MODE"), "Disable rate limiting")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Flags override the file
	if logFile != "" {
		cfg.LogFile = logFile
	}
	if dbPath != "" {
		cfg.Database = dbPath
	}
	if historyPath != "" {
		cfg.History = historyPath
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if exposeErrors {
		cfg.Server.ExposeErrors = true
	}

	logger, logFileHandle, err := setupLogging(cfg.LogFile, slog.LevelInfo)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	logger.Info("Starting promoter", "version", version, "config", path)

	repos := cfg.Repositories
	logger.Info("Configuration validated successfully", "repositories", len(repos), "version_policy", cfg.VersionPolicy)

	svc, err := openServices(cfg)
	if err != nil {
		logger.Error("Failed to open storage", "error", err)
		return err
	}
	defer svc.Close()

	logger.Info("Initializing history database", "db", cfg.History)
	hist, err := history.NewHistory(cfg.History)
	if err != nil {
		logger.Error("Failed to initialize history database", "error", err)
		return fmt.Errorf("failed to initialize history database: %w", err)
	}

	dispatcher, err := newDispatcher(cfg, logger)
	if err != nil {
		hist.Close()
		return fmt.Errorf("failed to configure notifications: %w", err)
	}

	srv := server.NewServer(svc.builds, svc.store, svc.repos, hist, logger, testMode)
	srv.Promoter.Resolve = cfg.Resolver()
	srv.Notifier = dispatcher
	srv.Secret = cfg.Server.Secret
	srv.ExposeErrors = cfg.Server.ExposeErrors

	if srv.Secret == "" {
		logger.Warn("No server secret configured, request signatures are not checked")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := srv.Start(ctx, cfg.Addr())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", "error", err)
	}

	if serveErr != nil {
		logger.Error("Server failed", "error", serveErr)
		return fmt.Errorf("server failed: %w", serveErr)
	}
	logger.Info("Server stopped")
	return nil
}
