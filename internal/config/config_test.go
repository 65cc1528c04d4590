package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testSecret = "3tQ9vL2xR7mK4pW8zN1cB6hJ5sD0fG-yU_aE8iO3nT7rX2wV9k"

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "promoter.yaml", `
server:
  port: 8080
  secret: `+testSecret+`
database: /var/lib/promoter/promoter.db
store:
  root: /var/lib/promoter/repositories
version_policy: strip-snapshot
repositories:
  libs-snapshot-local:
    layout: maven-2-default
  libs-release-local:
    layout: maven-2-default
    release: true
notify:
  commands:
    - ./notify.sh --channel releases
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 8080 || cfg.Server.Host != DefaultHost {
		t.Errorf("Unexpected server config: %+v", cfg.Server)
	}
	if cfg.Addr() != "127.0.0.1:8080" {
		t.Errorf("Unexpected address %q", cfg.Addr())
	}
	if cfg.LogFile != DefaultLogFile {
		t.Errorf("Expected default log file, got %q", cfg.LogFile)
	}
	if cfg.Notify.CommandTimeout != DefaultCommandTimeout {
		t.Errorf("Expected default command timeout, got %d", cfg.Notify.CommandTimeout)
	}
	if len(cfg.Repositories) != 2 || !cfg.Repositories["libs-release-local"].Release {
		t.Errorf("Unexpected repositories: %+v", cfg.Repositories)
	}
	if got := cfg.Resolver()("1.0-rc1-SNAPSHOT", mustSnapshot(t)); got != "1.0-rc1" {
		t.Errorf("Expected strip-snapshot policy, got %q", got)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "promoter.toml", `
database = "/tmp/promoter.db"

[store]
root = "/srv/repositories"

[repositories.ivy-snapshot-local]
layout = "ivy-default"

[repositories.ivy-release-local]
layout = "ivy-default"
release = true

[notify.github]
token = "ghp_example"
owner_repo = "acme/builds"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Store.Root != "/srv/repositories" {
		t.Errorf("Unexpected store root %q", cfg.Store.Root)
	}
	if cfg.Repositories["ivy-release-local"].Layout != "ivy-default" {
		t.Errorf("Unexpected repositories: %+v", cfg.Repositories)
	}
	if !cfg.Notify.GitHub.Enabled() || cfg.Notify.GitHub.OwnerRepo != "acme/builds" {
		t.Errorf("Expected GitHub notifications to be enabled, got %+v", cfg.Notify.GitHub)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Expected default port, got %d", cfg.Server.Port)
	}
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	path := writeConfig(t, "promoter.json", `{}`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported config format") {
		t.Errorf("Expected unsupported format error, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "promoter.yaml", "")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected empty config to be rejected")
	}
	for _, s := range []string{"store.root", "at least one repository"} {
		if !strings.Contains(err.Error(), s) {
			t.Errorf("Expected error to mention %q, got: %v", s, err)
		}
	}
}

func validConfig() Config {
	cfg := Default()
	cfg.Store.Root = "/srv/repositories"
	cfg.Repositories = map[string]RepositoryConfig{
		"libs-snapshot-local": {Layout: "maven-2-default"},
		"libs-release-local":  {Layout: "maven-2-default", Release: true},
	}
	return cfg
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name     string
		modify   func(c *Config)
		expected string
	}{
		{"valid", func(c *Config) {}, ""},
		{"relative store root", func(c *Config) { c.Store.Root = "repos" }, "store.root: path must be absolute"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"short secret", func(c *Config) { c.Server.Secret = "changeme" }, "server.secret: weak signing secret: 8 characters"},
		{"sample secret", func(c *Config) {
			c.Server.Secret = "replace-with-signing-secret-at-least-48-chars-long"
		}, "server.secret: weak signing secret: looks like a sample value"},
		{"repetitive secret", func(c *Config) { c.Server.Secret = strings.Repeat("xy", 30) }, "server.secret: weak signing secret: entropy"},
		{"no secret disables signing", func(c *Config) { c.Server.Secret = "" }, ""},
		{"unknown layout", func(c *Config) {
			c.Repositories["generic-local"] = RepositoryConfig{Layout: "npm-default"}
		}, "unknown layout"},
		{"invalid repository name", func(c *Config) {
			c.Repositories["../escape"] = RepositoryConfig{}
		}, "Repository '../escape'"},
		{"shared history database", func(c *Config) { c.History = c.Database }, "must not share"},
		{"unknown version policy", func(c *Config) { c.VersionPolicy = "semver" }, "version_policy"},
		{"negative command timeout", func(c *Config) { c.Notify.CommandTimeout = -1 }, "must be a positive integer"},
		{"unbalanced command quotes", func(c *Config) { c.Notify.Commands = []string{`echo "oops`} }, "notify.commands[0]"},
		{"github without token", func(c *Config) { c.Notify.GitHub.OwnerRepo = "acme/builds" }, "token is required"},
		{"github bad owner repo", func(c *Config) {
			c.Notify.GitHub.OwnerRepo = "acme"
			c.Notify.GitHub.Token = "ghp_example"
		}, "owner/repo"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.modify(&cfg)
			errs := cfg.Validate()

			if tc.expected == "" {
				if len(errs) > 0 {
					t.Errorf("Expected valid config, got errors: %v", errs)
				}
				return
			}

			found := false
			for _, err := range errs {
				if strings.Contains(err, tc.expected) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("Expected error containing %q, got: %v", tc.expected, errs)
			}
		})
	}
}
