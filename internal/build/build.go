// Package build holds the build-info model shared by the registry and the
// promotion workflow.
package build

import (
	"strings"

	"promoter/internal/store"
)

// ReleaseSuffix is appended to a staged build number to form the number of
// its release build
const ReleaseSuffix = "-r"

// Run identifies one recorded execution of a build
type Run struct {
	Name    string `json:"name"`
	Number  string `json:"number"`
	Started string `json:"started"`
}

// String renders the run as "name/number"
func (r Run) String() string {
	return r.Name + "/" + r.Number
}

// Build is the detailed record of a run: its modules and the artifact files
// it produced
type Build struct {
	Name       string            `json:"name"`
	Number     string            `json:"number"`
	Started    string            `json:"started"`
	Properties map[string]string `json:"properties,omitempty"`
	Modules    []Module          `json:"modules"`
	Statuses   []ReleaseStatus   `json:"statuses,omitempty"`

	// Files are the stored artifact files attributed to the build. The
	// registry keeps them apart from the build document.
	Files []store.FileInfo `json:"files,omitempty"`
}

// Run returns the identity of the build
func (b *Build) Run() Run {
	return Run{Name: b.Name, Number: b.Number, Started: b.Started}
}

// Clone returns a deep copy of the build
func (b *Build) Clone() *Build {
	out := &Build{
		Name:    b.Name,
		Number:  b.Number,
		Started: b.Started,
	}
	if b.Properties != nil {
		out.Properties = make(map[string]string, len(b.Properties))
		for k, v := range b.Properties {
			out.Properties[k] = v
		}
	}
	out.Modules = make([]Module, len(b.Modules))
	for i, m := range b.Modules {
		out.Modules[i] = m.Clone()
	}
	out.Statuses = append([]ReleaseStatus(nil), b.Statuses...)
	out.Files = append([]store.FileInfo(nil), b.Files...)
	return out
}

// Module is one published unit of a build. Its ID is a colon-delimited
// coordinate whose last segment is the version, e.g. "com.acme:lib:1.0-SNAPSHOT".
type Module struct {
	ID           string       `json:"id"`
	Artifacts    []Artifact   `json:"artifacts,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
}

// Version returns the last coordinate segment of the module ID
func (m Module) Version() string {
	_, v := SplitCoordinate(m.ID)
	return v
}

// Clone returns a deep copy of the module
func (m Module) Clone() Module {
	out := Module{ID: m.ID}
	out.Artifacts = append([]Artifact(nil), m.Artifacts...)
	if m.Dependencies != nil {
		out.Dependencies = make([]Dependency, len(m.Dependencies))
		for i, d := range m.Dependencies {
			d.Scopes = append([]string(nil), d.Scopes...)
			out.Dependencies[i] = d
		}
	}
	return out
}

// Artifact is a file published by a module
type Artifact struct {
	Type string `json:"type"`
	Name string `json:"name"`
	SHA1 string `json:"sha1"`
}

// Kind returns the artifact's handling variant
func (a Artifact) Kind() Kind {
	return KindOf(a.Type)
}

// Dependency is a file a module was built against
type Dependency struct {
	ID     string   `json:"id"`
	SHA1   string   `json:"sha1"`
	Scopes []string `json:"scopes,omitempty"`
	Type   string   `json:"type,omitempty"`
}

// ReleaseStatus records a status change of a build, such as a promotion
type ReleaseStatus struct {
	Status     string `json:"status"`
	Comment    string `json:"comment,omitempty"`
	Repository string `json:"repository,omitempty"`
	Timestamp  string `json:"timestamp"`
	User       string `json:"user,omitempty"`
	CIUser     string `json:"ci_user,omitempty"`
}

// Kind is the closed set of artifact variants the promotion distinguishes
type Kind int

const (
	// KindOpaque artifacts are copied byte for byte
	KindOpaque Kind = iota
	// KindIvy is an Ivy module descriptor (ivy.xml)
	KindIvy
	// KindPOM is a Maven project object model (pom.xml)
	KindPOM
)

func (k Kind) String() string {
	switch k {
	case KindIvy:
		return "ivy"
	case KindPOM:
		return "pom"
	default:
		return "opaque"
	}
}

// KindOf maps a build-info artifact type to its variant
func KindOf(artifactType string) Kind {
	switch strings.ToLower(artifactType) {
	case "ivy":
		return KindIvy
	case "pom":
		return KindPOM
	default:
		return KindOpaque
	}
}

// SplitCoordinate splits a coordinate at its last colon into the prefix and
// the version. A coordinate without a colon is all version.
func SplitCoordinate(id string) (prefix, version string) {
	i := strings.LastIndex(id, ":")
	if i < 0 {
		return "", id
	}
	return id[:i], id[i+1:]
}

// WithVersion replaces the version segment of a coordinate
func WithVersion(id, version string) string {
	prefix, _ := SplitCoordinate(id)
	if prefix == "" && !strings.Contains(id, ":") {
		return version
	}
	return prefix + ":" + version
}
