package promotion

import (
	"path"
	"strings"

	"promoter/internal/layout"
	"promoter/internal/store"
)

// PathMapper computes where a staged file lives once released
type PathMapper struct {
	Resolve VersionResolver
}

// Map returns the release location of staged in the target repository.
//
// A file whose version is not a pre-release keeps its path, which is an error
// when the target is the repository it was staged in. A file under a
// recognized layout loses its integration revisions; any other file has every
// occurrence of the staged version replaced by the resolved one. A release
// path equal to the staged path is an error.
func (m PathMapper) Map(target string, staged store.RepoPath, version string, exp SnapshotExpression, info layout.Info) (store.RepoPath, error) {
	if !exp.Matches(version) && !info.Integration {
		released := store.RepoPath{Repo: target, Path: staged.Path}
		if released == staged {
			return store.RepoPath{}, &PathMappingError{Staged: staged, Version: version}
		}
		return released, nil
	}

	var released string
	if info.Valid {
		released = stripIntegration(staged.Path, info)
	} else {
		released = strings.ReplaceAll(staged.Path, version, m.Resolve(version, exp))
	}

	if released == staged.Path {
		return store.RepoPath{}, &PathMappingError{Staged: staged, Version: version}
	}
	return store.RepoPath{Repo: target, Path: released}, nil
}

// stripIntegration removes the folder integration revision from the version
// folder and the file integration revision from the file name
func stripIntegration(p string, info layout.Info) string {
	dir, file := path.Split(p)

	if rev := info.FolderIntegrationRevision; rev != "" {
		needle := info.BaseRevision + "-" + rev
		if i := strings.LastIndex(dir, needle); i >= 0 {
			dir = dir[:i] + info.BaseRevision + dir[i+len(needle):]
		}
	}
	if rev := info.FileIntegrationRevision; rev != "" {
		needle := info.BaseRevision + "-" + rev
		if i := strings.Index(file, needle); i >= 0 {
			file = file[:i] + info.BaseRevision + file[i+len(needle):]
		}
	}

	return dir + file
}
