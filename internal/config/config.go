// Package config loads the promoter service configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"promoter/internal/layout"
	"promoter/internal/promotion"
	"promoter/internal/security"
	"promoter/pkg/cmdutil"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFileName       = "promoter.yaml"
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 5000
	DefaultDatabase       = "promoter.db"
	DefaultHistory        = "promoter-history.db"
	DefaultLogFile        = "promoter.log"
	DefaultCommandTimeout = 60
)

var ownerRepoPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// Config represents the root configuration structure
type Config struct {
	Server        ServerConfig                `yaml:"server" toml:"server"`
	Database      string                      `yaml:"database" toml:"database"`
	History       string                      `yaml:"history" toml:"history"`
	LogFile       string                      `yaml:"log_file" toml:"log_file"`
	Store         StoreConfig                 `yaml:"store" toml:"store"`
	VersionPolicy string                      `yaml:"version_policy" toml:"version_policy"`
	Repositories  map[string]RepositoryConfig `yaml:"repositories" toml:"repositories"`
	Notify        NotifyConfig                `yaml:"notify" toml:"notify"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`

	// Secret signs API requests. An empty secret disables signature checks.
	Secret       string `yaml:"secret" toml:"secret"`
	ExposeErrors bool   `yaml:"expose_errors" toml:"expose_errors"`
}

// StoreConfig locates the artifact store
type StoreConfig struct {
	Root string `yaml:"root" toml:"root"`
}

// RepositoryConfig describes one repository of the store
type RepositoryConfig struct {
	Layout  string `yaml:"layout" toml:"layout"`
	Release bool   `yaml:"release" toml:"release"`
}

// NotifyConfig lists what runs after a successful promotion
type NotifyConfig struct {
	CommandTimeout int          `yaml:"command_timeout" toml:"command_timeout"`
	Commands       []string     `yaml:"commands" toml:"commands"`
	GitHub         GitHubConfig `yaml:"github" toml:"github"`
}

// GitHubConfig enables publishing a GitHub release per promotion
type GitHubConfig struct {
	Token     string `yaml:"token" toml:"token"`
	OwnerRepo string `yaml:"owner_repo" toml:"owner_repo"`
	Draft     bool   `yaml:"draft" toml:"draft"`

	// APIURL points at a GitHub Enterprise API; empty means api.github.com
	APIURL string `yaml:"api_url" toml:"api_url"`
}

// Enabled reports whether a GitHub release should be published
func (g GitHubConfig) Enabled() bool {
	return g.OwnerRepo != ""
}

// Default returns a configuration with default values
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Database:      DefaultDatabase,
		History:       DefaultHistory,
		LogFile:       DefaultLogFile,
		VersionPolicy: promotion.PolicyTruncateAtHyphen,
		Notify: NotifyConfig{
			CommandTimeout: DefaultCommandTimeout,
		},
	}
}

// Load reads and validates the configuration file. The format follows the
// extension: .yaml, .yml or .toml.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(configPath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (use .yaml, .yml or .toml)", ext)
	}

	// Initialize Repositories map if it's nil (happens with empty files)
	if cfg.Repositories == nil {
		cfg.Repositories = make(map[string]RepositoryConfig)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration in %s:\n%s", configPath, strings.Join(errs, "\n"))
	}

	return &cfg, nil
}

// Validate returns every problem found in the configuration
func (c *Config) Validate() []string {
	var errors []string

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, fmt.Sprintf("  - server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.Secret != "" {
		if err := security.ValidateSecret(c.Server.Secret); err != nil {
			errors = append(errors, fmt.Sprintf("  - server.secret: %v", err))
		}
	}

	// Storage
	if c.Database == "" {
		errors = append(errors, "  - missing required 'database' field")
	}
	if c.History == "" {
		errors = append(errors, "  - missing required 'history' field")
	} else if c.History == c.Database {
		errors = append(errors, "  - 'history' must not share the build database file")
	}
	if c.Store.Root == "" {
		errors = append(errors, "  - missing required 'store.root' field")
	} else if _, err := security.SanitizePath(c.Store.Root); err != nil {
		errors = append(errors, fmt.Sprintf("  - store.root: %v", err))
	}

	if _, err := promotion.ResolverFor(c.VersionPolicy); err != nil {
		errors = append(errors, fmt.Sprintf("  - version_policy: %v", err))
	}

	// Repositories
	if len(c.Repositories) == 0 {
		errors = append(errors, "  - at least one repository must be configured")
	}
	for _, name := range sortedNames(c.Repositories) {
		repo := c.Repositories[name]
		if err := security.ValidateRepositoryName(name); err != nil {
			errors = append(errors, fmt.Sprintf("  - Repository '%s': %v", name, err))
		}
		if repo.Layout != "" && !layout.Known(repo.Layout) {
			errors = append(errors, fmt.Sprintf("  - Repository '%s': unknown layout '%s' (supported: %s)",
				name, repo.Layout, strings.Join(layout.Names(), ", ")))
		}
	}

	// Notifications
	if c.Notify.CommandTimeout < 0 {
		errors = append(errors, fmt.Sprintf("  - notify.command_timeout must be a positive integer, got %d", c.Notify.CommandTimeout))
	}
	for i, cmd := range c.Notify.Commands {
		if _, err := cmdutil.ParseCommandString(cmd); err != nil {
			errors = append(errors, fmt.Sprintf("  - notify.commands[%d]: %v", i, err))
		}
	}
	if gh := c.Notify.GitHub; gh.Enabled() {
		if !ownerRepoPattern.MatchString(gh.OwnerRepo) {
			errors = append(errors, fmt.Sprintf("  - notify.github.owner_repo must look like 'owner/repo', got '%s'", gh.OwnerRepo))
		}
		if gh.Token == "" {
			errors = append(errors, "  - notify.github.token is required when owner_repo is set")
		}
	}

	return errors
}

// Resolver returns the configured version policy
func (c *Config) Resolver() promotion.VersionResolver {
	resolve, err := promotion.ResolverFor(c.VersionPolicy)
	if err != nil {
		return promotion.TruncateAtHyphen
	}
	return resolve
}

// Addr returns the listen address of the HTTP API
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
