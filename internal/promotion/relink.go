package promotion

import (
	"context"
	"fmt"

	"promoter/internal/build"
	"promoter/internal/store"
)

// relinker points dependencies produced by the staged build at their released
// files. External dependencies are left alone.
type relinker struct {
	store  ArtifactStore
	mapper PathMapper
}

func (r *relinker) relink(ctx context.Context, a *Attempt, m build.Module, staged []store.FileInfo) (build.Module, error) {
	if len(m.Dependencies) == 0 {
		return m, nil
	}

	deps := make([]build.Dependency, 0, len(m.Dependencies))
	for _, d := range m.Dependencies {
		file, ok := dependencyFile(r.store, d, staged, a)
		if !ok {
			deps = append(deps, d)
			continue
		}

		_, depVersion := build.SplitCoordinate(d.ID)
		target, ok := a.ReleasePath(file.RepoPath)
		if !ok {
			info := r.store.LayoutInfo(file.RepoPath)
			version := depVersion
			if info.Valid {
				version = info.Version()
			}
			var err error
			target, err = r.mapper.Map(a.Target, file.RepoPath, version, a.Snapshot, info)
			if err != nil {
				return build.Module{}, fmt.Errorf("relink %s of %s: %w", d.ID, m.ID, err)
			}
		}
		released, err := r.store.Info(ctx, target)
		if err != nil {
			return build.Module{}, fmt.Errorf("relink %s of %s: released file %s: %w", d.ID, m.ID, target, err)
		}

		deps = append(deps, build.Dependency{
			ID:     build.WithVersion(d.ID, a.Resolve(depVersion, a.Snapshot)),
			SHA1:   released.SHA1,
			Scopes: append([]string(nil), d.Scopes...),
			Type:   d.Type,
		})
	}

	m.Dependencies = deps
	return m, nil
}
