// Package store implements the artifact store on a local directory tree.
//
// Each repository is a directory under the store root; files keep their
// repository path. Properties live in YAML sidecar files under
// <root>/.properties/<repo>/ so that listing a repository never shows them.
package store

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"promoter/internal/layout"
	"promoter/internal/security"

	"gopkg.in/yaml.v3"
)

const propertiesDir = ".properties"

// ErrNotFound is returned when a path does not exist in the store
var ErrNotFound = errors.New("path not found")

// FileStore is an artifact store backed by the filesystem
type FileStore struct {
	root    string
	layouts map[string]string // repository -> layout name
}

// NewFileStore creates the store root if needed. layouts maps repository names
// to layout names; repositories without an entry have no recognized layout.
func NewFileStore(root string, layouts map[string]string) (*FileStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store root: %w", err)
	}
	if err := security.CreateSecureDir(absRoot, security.PermDirectory); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}

	copied := make(map[string]string, len(layouts))
	for repo, name := range layouts {
		copied[repo] = name
	}

	return &FileStore{root: absRoot, layouts: copied}, nil
}

// Root returns the absolute store root
func (s *FileStore) Root() string {
	return s.root
}

// fsPath maps a repository path to its location on disk
func (s *FileStore) fsPath(p RepoPath) (string, error) {
	if err := security.ValidateRepositoryName(p.Repo); err != nil {
		return "", err
	}
	cleaned, err := security.SanitizeRepoPath(p.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, p.Repo, filepath.FromSlash(cleaned)), nil
}

// propsPath maps a repository path to its property sidecar
func (s *FileStore) propsPath(p RepoPath) (string, error) {
	if err := security.ValidateRepositoryName(p.Repo); err != nil {
		return "", err
	}
	cleaned, err := security.SanitizeRepoPath(p.Path)
	if err != nil {
		return "", err
	}
	if cleaned == "" {
		return filepath.Join(s.root, propertiesDir, p.Repo+".yaml"), nil
	}
	return filepath.Join(s.root, propertiesDir, p.Repo, filepath.FromSlash(cleaned)+".yaml"), nil
}

// Exists reports whether p is a stored file or folder
func (s *FileStore) Exists(ctx context.Context, p RepoPath) bool {
	full, err := s.fsPath(p)
	if err != nil {
		return false
	}
	_, err = os.Stat(full)
	return err == nil
}

// Copy copies the file at src to dst, replacing any existing file
func (s *FileStore) Copy(ctx context.Context, src, dst RepoPath) error {
	srcPath, err := s.fsPath(src)
	if err != nil {
		return fmt.Errorf("invalid source %s: %w", src, err)
	}

	in, err := os.Open(srcPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("copy %s: %w", src, ErrNotFound)
		}
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	if info.IsDir() {
		return fmt.Errorf("copy %s: folders cannot be copied", src)
	}

	return s.write(dst, in)
}

// Deploy writes content to dst, replacing any existing file
func (s *FileStore) Deploy(ctx context.Context, dst RepoPath, content io.Reader) error {
	return s.write(dst, content)
}

// write stores content through a temporary file so readers never observe a
// partially written artifact
func (s *FileStore) write(dst RepoPath, content io.Reader) error {
	if dst.IsRoot() {
		return fmt.Errorf("cannot write to repository root %s", dst.Repo)
	}
	dstPath, err := s.fsPath(dst)
	if err != nil {
		return fmt.Errorf("invalid destination %s: %w", dst, err)
	}

	dir := filepath.Dir(dstPath)
	if err := os.MkdirAll(dir, security.PermDirectory); err != nil {
		return fmt.Errorf("failed to create folder for %s: %w", dst, err)
	}

	tmp, err := os.CreateTemp(dir, ".deploy-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", dst, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := os.Chmod(tmpName, security.PermArtifact); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions on %s: %w", dst, err)
	}
	if err := os.Rename(tmpName, dstPath); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", dst, err)
	}

	return nil
}

// Delete removes a file or a folder (recursively) together with its properties.
// Deleting a path that does not exist is not an error.
func (s *FileStore) Delete(ctx context.Context, p RepoPath) error {
	if p.IsRoot() {
		return fmt.Errorf("refusing to delete repository root %s", p.Repo)
	}
	full, err := s.fsPath(p)
	if err != nil {
		return fmt.Errorf("invalid path %s: %w", p, err)
	}
	if err := os.RemoveAll(full); err != nil {
		return fmt.Errorf("failed to delete %s: %w", p, err)
	}

	props, err := s.propsPath(p)
	if err != nil {
		return err
	}
	if err := os.Remove(props); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete properties of %s: %w", p, err)
	}
	// Properties of children
	if err := os.RemoveAll(props[:len(props)-len(".yaml")]); err != nil {
		return fmt.Errorf("failed to delete properties under %s: %w", p, err)
	}

	return nil
}

// ListChildren returns the direct children of the folder p in name order
func (s *FileStore) ListChildren(ctx context.Context, p RepoPath) ([]RepoPath, error) {
	full, err := s.fsPath(p)
	if err != nil {
		return nil, fmt.Errorf("invalid path %s: %w", p, err)
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("list %s: %w", p, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to list %s: %w", p, err)
	}

	children := make([]RepoPath, 0, len(entries))
	for _, e := range entries {
		child := e.Name()
		if !p.IsRoot() {
			child = p.Path + "/" + child
		}
		children = append(children, RepoPath{Repo: p.Repo, Path: child})
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Path < children[j].Path })

	return children, nil
}

// Content returns the text content of the file at p
func (s *FileStore) Content(ctx context.Context, p RepoPath) (string, error) {
	full, err := s.fsPath(p)
	if err != nil {
		return "", fmt.Errorf("invalid path %s: %w", p, err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read %s: %w", p, ErrNotFound)
		}
		return "", fmt.Errorf("failed to read %s: %w", p, err)
	}
	return string(data), nil
}

// Info returns the checksum and size of the file at p
func (s *FileStore) Info(ctx context.Context, p RepoPath) (FileInfo, error) {
	full, err := s.fsPath(p)
	if err != nil {
		return FileInfo{}, fmt.Errorf("invalid path %s: %w", p, err)
	}

	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return FileInfo{}, fmt.Errorf("info %s: %w", p, ErrNotFound)
		}
		return FileInfo{}, fmt.Errorf("failed to open %s: %w", p, err)
	}
	defer f.Close()

	h := sha1.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to checksum %s: %w", p, err)
	}

	return FileInfo{RepoPath: p, SHA1: hex.EncodeToString(h.Sum(nil)), Size: n}, nil
}

// Properties returns the properties stored on p; a path without properties
// yields an empty map
func (s *FileStore) Properties(ctx context.Context, p RepoPath) (Properties, error) {
	file, err := s.propsPath(p)
	if err != nil {
		return nil, fmt.Errorf("invalid path %s: %w", p, err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Properties{}, nil
		}
		return nil, fmt.Errorf("failed to read properties of %s: %w", p, err)
	}

	props := Properties{}
	if err := yaml.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("failed to parse properties of %s: %w", p, err)
	}
	return props, nil
}

// SetProperty replaces the values stored under key on p
func (s *FileStore) SetProperty(ctx context.Context, p RepoPath, key string, values ...string) error {
	if key == "" {
		return fmt.Errorf("property key cannot be empty")
	}
	if !s.Exists(ctx, p) {
		return fmt.Errorf("set property on %s: %w", p, ErrNotFound)
	}

	props, err := s.Properties(ctx, p)
	if err != nil {
		return err
	}
	props[key] = append([]string(nil), values...)

	data, err := yaml.Marshal(props)
	if err != nil {
		return fmt.Errorf("failed to encode properties of %s: %w", p, err)
	}

	file, err := s.propsPath(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(file), security.PermDirectory); err != nil {
		return fmt.Errorf("failed to create properties folder for %s: %w", p, err)
	}
	if err := os.WriteFile(file, data, security.PermArtifact); err != nil {
		return fmt.Errorf("failed to write properties of %s: %w", p, err)
	}
	return nil
}

// LayoutInfo parses p according to its repository's configured layout
func (s *FileStore) LayoutInfo(p RepoPath) layout.Info {
	return layout.Parse(s.layouts[p.Repo], p.Path)
}

// ResolveFiles computes file information for each path, failing on the first
// path that is not stored
func (s *FileStore) ResolveFiles(ctx context.Context, paths []RepoPath) ([]FileInfo, error) {
	infos := make([]FileInfo, 0, len(paths))
	for _, p := range paths {
		info, err := s.Info(ctx, p)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// DeployBytes is a convenience wrapper around Deploy
func (s *FileStore) DeployBytes(ctx context.Context, dst RepoPath, content []byte) error {
	return s.Deploy(ctx, dst, bytes.NewReader(content))
}
