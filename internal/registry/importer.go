package registry

import (
	"context"
	"errors"
	"fmt"

	"promoter/internal/build"
	"promoter/internal/security"
	"promoter/internal/store"
)

// ErrInvalidBuild indicates an imported build document failed validation
var ErrInvalidBuild = errors.New("invalid build")

// FileResolver computes the checksums of stored files
type FileResolver interface {
	ResolveFiles(ctx context.Context, paths []store.RepoPath) ([]store.FileInfo, error)
}

// Import records a staged build. Only the repository paths of b.Files are
// trusted; checksums and sizes are recomputed from the store.
func (r *Registry) Import(ctx context.Context, b *build.Build, files FileResolver) error {
	if err := validateImport(b); err != nil {
		return err
	}

	paths := make([]store.RepoPath, len(b.Files))
	for i, f := range b.Files {
		paths[i] = f.RepoPath
	}

	resolved, err := files.ResolveFiles(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to resolve files of %s: %w", b.Run(), err)
	}

	imported := b.Clone()
	imported.Files = resolved
	return r.Save(ctx, imported)
}

func validateImport(b *build.Build) error {
	if err := security.ValidateBuildName(b.Name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBuild, err)
	}
	if err := security.ValidateBuildNumber(b.Number); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBuild, err)
	}
	if b.Started == "" {
		return fmt.Errorf("%w: started is required", ErrInvalidBuild)
	}
	for i, m := range b.Modules {
		if m.ID == "" {
			return fmt.Errorf("%w: module %d has no id", ErrInvalidBuild, i)
		}
	}
	for i, f := range b.Files {
		if f.RepoPath.Repo == "" || f.RepoPath.Path == "" {
			return fmt.Errorf("%w: file %d needs a repository and a path", ErrInvalidBuild, i)
		}
	}
	return nil
}
