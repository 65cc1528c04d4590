package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"promoter/internal/config"
	"promoter/internal/notify"
	"promoter/internal/registry"
	"promoter/internal/security"
	"promoter/internal/store"
	"promoter/pkg/fileutil"
)

var configNames = []string{config.DefaultFileName, "promoter.yml", "promoter.toml"}

// loadConfig loads the given configuration file, or searches the default
// locations when path is empty
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		found, err := fileutil.FindConfig(configNames...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: No configuration file found in default locations:\n")
			for _, p := range fileutil.ConfigCandidates(fileutil.ConfigDirs, configNames...) {
				fmt.Fprintf(os.Stderr, "  - %s\n", p)
			}
			fmt.Fprintf(os.Stderr, "Use --config flag to specify a custom location\n")
			return nil, "", fmt.Errorf("configuration file not found")
		}
		path = found
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}

	if cfg.Server.Secret != "" || cfg.Notify.GitHub.Token != "" {
		if err := security.ValidateSecurePermissions(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	return cfg, path, nil
}

// services bundles the stores every command works against
type services struct {
	repos  *config.Repositories
	store  *store.FileStore
	builds *registry.Registry
}

func openServices(cfg *config.Config) (*services, error) {
	repos := config.NewRepositories(cfg.Repositories)

	st, err := store.NewFileStore(cfg.Store.Root, repos.Layouts())
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}

	builds, err := registry.NewRegistry(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open build registry: %w", err)
	}

	return &services{repos: repos, store: st, builds: builds}, nil
}

func (s *services) Close() error {
	return s.builds.Close()
}

// newDispatcher builds the configured post-promotion notifiers
func newDispatcher(cfg *config.Config, logger *slog.Logger) (*notify.Dispatcher, error) {
	var notifiers []notify.Notifier

	if len(cfg.Notify.Commands) > 0 {
		timeout := time.Duration(cfg.Notify.CommandTimeout) * time.Second
		n, err := notify.NewCommandNotifier(cfg.Notify.Commands, timeout, "", logger)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}

	if gh := cfg.Notify.GitHub; gh.Enabled() {
		n, err := notify.NewGitHubNotifier(gh.Token, gh.OwnerRepo, gh.APIURL, gh.Draft, logger)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}

	return notify.NewDispatcher(logger, notifiers...), nil
}

// setupLogging returns a JSON logger writing to stdout and the log file. The
// caller must close the returned file.
func setupLogging(logPath string, level slog.Level) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	handler := slog.NewJSONHandler(io.MultiWriter(os.Stdout, file), &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(handler), file, nil
}

// consoleLogger logs human-readable lines to stderr for one-shot commands
func consoleLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Helper functions for environment variables
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func envBool(key string) bool {
	switch os.Getenv(key) {
	case "1", "true", "yes":
		return true
	}
	return false
}
