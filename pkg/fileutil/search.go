package fileutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ConfigDirs are the folders searched for a configuration file, in order
var ConfigDirs = []string{".", "config", "/etc/promoter"}

// ConfigCandidates lists the paths tried for names. Every name is tried in a
// folder before the next folder.
func ConfigCandidates(dirs []string, names ...string) []string {
	paths := make([]string, 0, len(dirs)*len(names))
	for _, dir := range dirs {
		for _, name := range names {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return paths
}

// FirstFile returns the first path naming a regular file. Folders are
// skipped.
func FirstFile(paths []string) (string, error) {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", fmt.Errorf("none of %v: %w", paths, fs.ErrNotExist)
}

// FindConfig returns the first configuration file named one of names in
// ConfigDirs
func FindConfig(names ...string) (string, error) {
	return FirstFile(ConfigCandidates(ConfigDirs, names...))
}
