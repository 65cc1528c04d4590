package security

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// Safe patterns for validation
	buildNamePattern   = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9 _./:-]*$`)
	buildNumberPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
	repositoryPattern  = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
)

// ValidateBuildName ensures a build name is safe to use in registry lookups and logs.
func ValidateBuildName(name string) error {
	if name == "" {
		return fmt.Errorf("build name cannot be empty")
	}
	if len(name) > 255 {
		return fmt.Errorf("build name too long (maximum 255 characters)")
	}
	if !buildNamePattern.MatchString(name) {
		return fmt.Errorf("build name contains invalid characters")
	}
	return nil
}

// ValidateBuildNumber ensures a build number is safe to use in registry lookups.
func ValidateBuildNumber(number string) error {
	if number == "" {
		return fmt.Errorf("build number cannot be empty")
	}
	if !buildNumberPattern.MatchString(number) {
		return fmt.Errorf("build number contains invalid characters")
	}
	return nil
}

// ValidateRepositoryName ensures repository name is safe for use as a directory name.
func ValidateRepositoryName(name string) error {
	if name == "" {
		return fmt.Errorf("repository name cannot be empty")
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("repository name cannot start with '-' or '.'")
	}
	if !repositoryPattern.MatchString(name) {
		return fmt.Errorf("repository name contains invalid characters (only a-z, A-Z, 0-9, _, ., - allowed)")
	}
	return nil
}

// SanitizeRepoPath cleans a repository-relative path and rejects traversal attempts.
// The result uses forward slashes and has no leading or trailing slash; the
// repository root is the empty string.
func SanitizeRepoPath(p string) (string, error) {
	if strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("path contains NUL byte")
	}
	if strings.Contains(p, `\`) {
		return "", fmt.Errorf("path contains backslash: %s", p)
	}

	// Check for .. before cleaning (path.Clean removes them)
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("path contains traversal elements: %s", p)
		}
	}

	cleaned := strings.Trim(path.Clean("/"+p), "/")
	return cleaned, nil
}

// SanitizePath ensures a path is absolute and doesn't contain traversal attempts.
// This is used for filesystem locations taken from configuration.
func SanitizePath(p string) (string, error) {
	// Must be absolute
	if !filepath.IsAbs(p) {
		return "", fmt.Errorf("path must be absolute: %s", p)
	}

	// Check for .. before cleaning (filepath.Clean removes them)
	if strings.Contains(p, "..") {
		return "", fmt.Errorf("path contains traversal elements: %s", p)
	}

	return filepath.Clean(p), nil
}
