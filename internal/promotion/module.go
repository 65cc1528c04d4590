package promotion

import (
	"context"
	"fmt"
	"strings"

	"promoter/internal/build"
	"promoter/internal/layout"
	"promoter/internal/store"
)

// Property keys maintained on released files
const (
	PropBuildNumber    = "build.number"
	PropBuildStatus    = "build.status"
	PropBuildTimestamp = "build.timestamp"

	releaseStatus = "release"
)

// modulePromoter copies, or rewrites and deploys, the staged files of one
// module into the target repository
type modulePromoter struct {
	store    ArtifactStore
	mapper   PathMapper
	rewriter DescriptorRewriter
}

// promote returns the released form of m. Artifacts without a staged file
// are kept as they are and recorded on the attempt.
func (p *modulePromoter) promote(ctx context.Context, a *Attempt, m build.Module, staged []store.FileInfo) (build.Module, error) {
	stagedVersion := m.Version()
	released := build.Module{
		ID:           build.WithVersion(m.ID, a.Resolve(stagedVersion, a.Snapshot)),
		Dependencies: m.Dependencies,
	}
	inner := innerDependencies(p.store, m.Dependencies, staged)

	artifacts := make([]build.Artifact, 0, len(m.Artifacts))
	for _, art := range m.Artifacts {
		file, ok := p.match(a, art, staged)
		if !ok {
			a.Logger.Warn("no staged file for artifact",
				"module", m.ID,
				"artifact", art.Name,
				"sha1", art.SHA1,
			)
			a.recordMissing(m.ID, art)
			artifacts = append(artifacts, art)
			continue
		}

		info := p.store.LayoutInfo(file.RepoPath)
		target, err := p.mapper.Map(a.Target, file.RepoPath, stagedVersion, a.Snapshot, info)
		if err != nil {
			return build.Module{}, err
		}

		a.Track(target)
		if err := p.deploy(ctx, a, art, file.RepoPath, target, inner); err != nil {
			return build.Module{}, err
		}
		if err := p.copyProperties(ctx, a, file.RepoPath, target); err != nil {
			return build.Module{}, err
		}

		a.recordRelease(file.RepoPath, target)

		deployed, err := p.store.Info(ctx, target)
		if err != nil {
			return build.Module{}, fmt.Errorf("failed to read released artifact %s: %w", target, err)
		}
		artifacts = append(artifacts, build.Artifact{Type: art.Type, Name: target.Name(), SHA1: deployed.SHA1})

		a.Logger.Info("artifact promoted",
			"module", released.ID,
			"from", file.RepoPath.String(),
			"to", target.String(),
		)
	}

	released.Artifacts = artifacts
	return released, nil
}

// match finds the staged file of art: same checksum, and a name that starts
// with the layout module unless the artifact is an Ivy descriptor or the
// layout is not recognized. A file is used for one artifact only; an exact
// name match wins over the first candidate.
func (p *modulePromoter) match(a *Attempt, art build.Artifact, staged []store.FileInfo) (store.FileInfo, bool) {
	var candidates []store.FileInfo
	for _, f := range staged {
		if f.SHA1 != art.SHA1 || a.claimed[f.RepoPath] {
			continue
		}
		info := p.store.LayoutInfo(f.RepoPath)
		if !info.Valid || art.Kind() == build.KindIvy || strings.HasPrefix(art.Name, info.Module) {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return store.FileInfo{}, false
	}

	chosen := candidates[0]
	for _, f := range candidates {
		if f.RepoPath.Name() == art.Name {
			chosen = f
			break
		}
	}
	if len(candidates) > 1 {
		a.Logger.Warn("several staged files match artifact",
			"artifact", art.Name,
			"candidates", len(candidates),
			"chosen", chosen.RepoPath.String(),
		)
	}

	a.claimed[chosen.RepoPath] = true
	return chosen, true
}

func (p *modulePromoter) deploy(ctx context.Context, a *Attempt, art build.Artifact, src, dst store.RepoPath, inner []InnerDependency) error {
	switch kind := art.Kind(); kind {
	case build.KindIvy, build.KindPOM:
		text, err := p.store.Content(ctx, src)
		if err != nil {
			return &MetadataRewriteError{Path: src, Err: err}
		}
		out, err := p.rewriter.Rewrite(kind, text, inner, a)
		if err != nil {
			return &MetadataRewriteError{Path: src, Err: err}
		}
		if err := p.store.Deploy(ctx, dst, strings.NewReader(out)); err != nil {
			return &MetadataRewriteError{Path: dst, Err: err}
		}
		return nil
	case build.KindOpaque:
		if err := p.store.Copy(ctx, src, dst); err != nil {
			return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
		}
		return nil
	default:
		return fmt.Errorf("unhandled artifact kind %s", kind)
	}
}

// copyProperties carries the staged properties over, marking the build number
// as a release and stamping status and promotion time
func (p *modulePromoter) copyProperties(ctx context.Context, a *Attempt, src, dst store.RepoPath) error {
	props, err := p.store.Properties(ctx, src)
	if err != nil {
		return fmt.Errorf("failed to read properties of %s: %w", src, err)
	}

	for _, key := range props.Keys() {
		values := props[key]
		switch key {
		case PropBuildStatus, PropBuildTimestamp:
			continue
		case PropBuildNumber:
			marked := make([]string, len(values))
			for i, v := range values {
				marked[i] = v + build.ReleaseSuffix
			}
			values = marked
		}
		if err := p.store.SetProperty(ctx, dst, key, values...); err != nil {
			return fmt.Errorf("failed to set property %s on %s: %w", key, dst, err)
		}
	}

	if err := p.store.SetProperty(ctx, dst, PropBuildStatus, releaseStatus); err != nil {
		return fmt.Errorf("failed to set property %s on %s: %w", PropBuildStatus, dst, err)
	}
	if err := p.store.SetProperty(ctx, dst, PropBuildTimestamp, a.TimestampMillis()); err != nil {
		return fmt.Errorf("failed to set property %s on %s: %w", PropBuildTimestamp, dst, err)
	}
	return nil
}

// innerDependencies lists the dependencies whose files were produced by the
// staged build itself
func innerDependencies(st ArtifactStore, deps []build.Dependency, staged []store.FileInfo) []InnerDependency {
	var inner []InnerDependency
	for _, d := range deps {
		file, ok := dependencyFile(st, d, staged, nil)
		if !ok {
			continue
		}
		inner = append(inner, innerDependency(st.LayoutInfo(file.RepoPath), d))
	}
	return inner
}

// innerDependency takes the coordinates from the file layout when it is
// recognized and from the dependency ID otherwise
func innerDependency(info layout.Info, d build.Dependency) InnerDependency {
	if info.Valid {
		return InnerDependency{
			Organization: info.Organization,
			Module:       info.Module,
			Revision:     info.Version(),
		}
	}

	parts := strings.Split(d.ID, ":")
	dep := InnerDependency{Revision: parts[len(parts)-1]}
	if len(parts) >= 3 {
		dep.Organization = parts[0]
		dep.Module = parts[1]
	}
	return dep
}

// dependencyFile finds the staged file a dependency was resolved to. Among
// files with the dependency checksum, one that was promoted wins over one that
// was not, and a file whose layout names the dependency module wins over one
// that does not. Ties go to the first file.
func dependencyFile(st ArtifactStore, d build.Dependency, staged []store.FileInfo, a *Attempt) (store.FileInfo, bool) {
	if d.SHA1 == "" {
		return store.FileInfo{}, false
	}
	module := dependencyModule(d.ID)

	best, bestScore := store.FileInfo{}, -1
	for _, f := range staged {
		if f.SHA1 != d.SHA1 {
			continue
		}
		score := 0
		if a != nil {
			if _, ok := a.ReleasePath(f.RepoPath); ok {
				score += 2
			}
		}
		if info := st.LayoutInfo(f.RepoPath); info.Valid && info.Module == module {
			score++
		}
		if score > bestScore {
			best, bestScore = f, score
		}
	}
	return best, bestScore >= 0
}

// dependencyModule returns the module part of a group:module:version ID
func dependencyModule(id string) string {
	parts := strings.Split(id, ":")
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}
