package store

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"promoter/internal/security"
)

// RepoPath addresses a file or folder inside a repository. The empty Path is
// the repository root.
type RepoPath struct {
	Repo string `json:"repo" yaml:"repo"`
	Path string `json:"path" yaml:"path"`
}

// NewRepoPath validates and normalizes repo and p
func NewRepoPath(repo, p string) (RepoPath, error) {
	if err := security.ValidateRepositoryName(repo); err != nil {
		return RepoPath{}, err
	}
	cleaned, err := security.SanitizeRepoPath(p)
	if err != nil {
		return RepoPath{}, err
	}
	return RepoPath{Repo: repo, Path: cleaned}, nil
}

// String renders the path as "repo:path"
func (p RepoPath) String() string {
	return fmt.Sprintf("%s:%s", p.Repo, p.Path)
}

// IsRoot reports whether p is the repository root
func (p RepoPath) IsRoot() bool {
	return p.Path == ""
}

// Name returns the last path element
func (p RepoPath) Name() string {
	if p.IsRoot() {
		return ""
	}
	return path.Base(p.Path)
}

// Parent returns the enclosing folder. The parent of the root is the root.
func (p RepoPath) Parent() RepoPath {
	dir := path.Dir(p.Path)
	if dir == "." || dir == "/" {
		dir = ""
	}
	return RepoPath{Repo: p.Repo, Path: dir}
}

// FileInfo describes a stored file
type FileInfo struct {
	RepoPath RepoPath `json:"repo_path"`
	SHA1     string   `json:"sha1"`
	Size     int64    `json:"size"`
}

// Properties is a multimap of key/value metadata attached to a stored path
type Properties map[string][]string

// First returns the first value stored under key, or ""
func (p Properties) First(key string) string {
	if vs := p[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Keys returns the property keys in sorted order
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, vs := range p {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// String renders properties as "k=v1,v2;k2=v"
func (p Properties) String() string {
	parts := make([]string, 0, len(p))
	for _, k := range p.Keys() {
		parts = append(parts, k+"="+strings.Join(p[k], ","))
	}
	return strings.Join(parts, ";")
}
