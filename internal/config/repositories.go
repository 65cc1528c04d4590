package config

import (
	"fmt"
	"sort"
	"sync"
)

// Repository is a configured repository of the artifact store
type Repository struct {
	Name    string
	Layout  string
	Release bool
}

// Repositories manages the collection of configured repositories
type Repositories struct {
	mu    sync.RWMutex
	repos map[string]*Repository
}

// NewRepositories creates a repository registry from configuration
func NewRepositories(configs map[string]RepositoryConfig) *Repositories {
	repos := make(map[string]*Repository, len(configs))
	for name, rc := range configs {
		repos[name] = &Repository{Name: name, Layout: rc.Layout, Release: rc.Release}
	}
	return &Repositories{repos: repos}
}

// Get retrieves a repository by name
func (r *Repositories) Get(name string) (*Repository, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	repo, exists := r.repos[name]
	if !exists {
		return nil, fmt.Errorf("repository '%s' not found", name)
	}

	return repo, nil
}

// List returns all repository names in sorted order
func (r *Repositories) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.repos))
	for name := range r.repos {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Count returns the number of repositories
func (r *Repositories) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.repos)
}

// Layouts maps each repository to its layout name
func (r *Repositories) Layouts() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	layouts := make(map[string]string, len(r.repos))
	for name, repo := range r.repos {
		layouts[name] = repo.Layout
	}
	return layouts
}

// IsTarget reports whether builds may be promoted into the named repository.
// When some repositories are marked as release repositories only those are
// targets; otherwise every configured repository is.
func (r *Repositories) IsTarget(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	repo, exists := r.repos[name]
	if !exists {
		return false
	}
	if repo.Release {
		return true
	}
	for _, other := range r.repos {
		if other.Release {
			return false
		}
	}
	return true
}

func sortedNames(repos map[string]RepositoryConfig) []string {
	names := make([]string, 0, len(repos))
	for name := range repos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
