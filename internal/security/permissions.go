package security

import (
	"fmt"
	"os"
)

const (
	// PermConfigFile is for configuration files containing sensitive data.
	// rw-r----- (0640): owner can read/write, group can read, others have no access.
	PermConfigFile os.FileMode = 0640

	// PermLogFile is for log files that may contain promotion information.
	PermLogFile os.FileMode = 0640

	// PermDBFile is for database files holding build records and promotion history.
	PermDBFile os.FileMode = 0640

	// PermDirectory is for store and state directories.
	// rwxr-x--- (0750): owner can read/write/execute, group can read/execute, others have no access.
	PermDirectory os.FileMode = 0750

	// PermArtifact is for deployed artifact files, which are readable by anyone.
	PermArtifact os.FileMode = 0644
)

// CreateSecureDir creates a new directory with secure permissions.
// If the directory already exists, it updates the permissions.
// Creates parent directories as needed.
func CreateSecureDir(path string, perm os.FileMode) error {
	if err := os.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("failed to create secure directory: %w", err)
	}

	// Ensure permissions are set correctly (MkdirAll may use umask)
	if err := os.Chmod(path, perm); err != nil {
		return fmt.Errorf("failed to set directory permissions: %w", err)
	}

	return nil
}

// IsWorldReadable checks if a file is readable by others.
func IsWorldReadable(perm os.FileMode) bool {
	return perm&0004 != 0
}

// IsWorldWritable checks if a file is writable by others.
func IsWorldWritable(perm os.FileMode) bool {
	return perm&0002 != 0
}

// ValidateSecurePermissions validates that a file does not have world-readable
// or world-writable permissions. Configuration holding a signing secret or a
// GitHub token is checked with this on load.
func ValidateSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	perm := info.Mode().Perm()

	if IsWorldReadable(perm) {
		return fmt.Errorf("file %s is world-readable (%04o), which is insecure for sensitive data", path, perm)
	}

	if IsWorldWritable(perm) {
		return fmt.Errorf("file %s is world-writable (%04o), which is a serious security risk", path, perm)
	}

	return nil
}
