// Package layout derives module coordinates from repository paths.
//
// Two conventions are understood:
//   - maven-2-default: [orgPath]/[module]/[baseRev](-[folderItegRev])/[module]-[baseRev](-[fileItegRev])(-[classifier]).[ext]
//   - ivy-default:     [org]/[module]/[baseRev](-[folderItegRev])/[type]s/[module](-[classifier])-[baseRev](-[fileItegRev]).[ext]
//
// A path that does not follow its repository's convention yields an Info with
// Valid set to false. Parsing never fails with an error.
package layout

import (
	"regexp"
	"strings"
)

const (
	Maven2Default = "maven-2-default"
	IvyDefault    = "ivy-default"

	// MavenSnapshot is the folder (and non-unique file) integration revision
	// used by Maven snapshots.
	MavenSnapshot = "SNAPSHOT"
)

var (
	mavenUniqueRevision = regexp.MustCompile(`^-(\d{8}\.\d{6}-\d+)`)
	ivyFolder           = regexp.MustCompile(`^(.+?)(?:-(\d{14}))?$`)
	ivyFileRevision     = regexp.MustCompile(`^-(\d{14})`)
)

// Info is the result of matching a path against a repository layout
type Info struct {
	Valid                     bool
	Integration               bool
	Organization              string
	Module                    string
	BaseRevision              string
	FolderIntegrationRevision string
	FileIntegrationRevision   string
	Classifier                string
	Type                      string
	Ext                       string
}

// Version returns the full staged revision the path was published under,
// e.g. "1.0-SNAPSHOT" or "1.0-20240131120000".
func (i Info) Version() string {
	rev := i.FolderIntegrationRevision
	if rev == "" {
		rev = i.FileIntegrationRevision
	}
	if rev == "" {
		return i.BaseRevision
	}
	return i.BaseRevision + "-" + rev
}

// Known reports whether name is a supported layout
func Known(name string) bool {
	return name == Maven2Default || name == IvyDefault
}

// Names returns the supported layout names
func Names() []string {
	return []string{Maven2Default, IvyDefault}
}

// Parse matches path against the named layout
func Parse(name, path string) Info {
	path = strings.Trim(path, "/")
	switch name {
	case Maven2Default:
		return parseMaven(path)
	case IvyDefault:
		return parseIvy(path)
	default:
		return Info{}
	}
}

func parseMaven(path string) Info {
	segs := strings.Split(path, "/")
	n := len(segs)
	if n < 4 {
		return Info{}
	}

	info := Info{
		Organization: strings.Join(segs[:n-3], "."),
		Module:       segs[n-3],
		Type:         "jar",
	}

	folder := segs[n-2]
	if base, ok := strings.CutSuffix(folder, "-"+MavenSnapshot); ok {
		info.BaseRevision = base
		info.FolderIntegrationRevision = MavenSnapshot
	} else {
		info.BaseRevision = folder
	}
	if info.BaseRevision == "" {
		return Info{}
	}

	rest, ok := strings.CutPrefix(segs[n-1], info.Module+"-"+info.BaseRevision)
	if !ok {
		return Info{}
	}

	if info.FolderIntegrationRevision != "" {
		if r, ok := strings.CutPrefix(rest, "-"+MavenSnapshot); ok {
			info.FileIntegrationRevision = MavenSnapshot
			rest = r
		} else if m := mavenUniqueRevision.FindStringSubmatch(rest); m != nil {
			info.FileIntegrationRevision = m[1]
			rest = rest[len(m[0]):]
		} else {
			return Info{}
		}
	}

	if !splitClassifierExt(&info, rest) {
		return Info{}
	}
	if info.Ext == "pom" {
		info.Type = "pom"
	}

	info.Integration = info.FolderIntegrationRevision != "" || info.FileIntegrationRevision != ""
	info.Valid = true
	return info
}

func parseIvy(path string) Info {
	segs := strings.Split(path, "/")
	if len(segs) != 5 {
		return Info{}
	}

	info := Info{
		Organization: segs[0],
		Module:       segs[1],
	}

	m := ivyFolder.FindStringSubmatch(segs[2])
	if m == nil {
		return Info{}
	}
	info.BaseRevision = m[1]
	info.FolderIntegrationRevision = m[2]

	typ, ok := strings.CutSuffix(segs[3], "s")
	if !ok || typ == "" {
		return Info{}
	}
	info.Type = typ

	file := segs[4]
	var rest string
	if typ == "ivy" {
		rest, ok = strings.CutPrefix(file, "ivy-"+info.BaseRevision)
		if !ok {
			return Info{}
		}
	} else {
		after, ok := strings.CutPrefix(file, info.Module)
		if !ok {
			return Info{}
		}
		idx := strings.Index(after, "-"+info.BaseRevision)
		if idx < 0 {
			return Info{}
		}
		if idx > 0 {
			if after[0] != '-' {
				return Info{}
			}
			info.Classifier = after[1:idx]
		}
		rest = after[idx+len(info.BaseRevision)+1:]
	}

	if fm := ivyFileRevision.FindStringSubmatch(rest); fm != nil {
		info.FileIntegrationRevision = fm[1]
		rest = rest[len(fm[0]):]
	}

	ext, ok := strings.CutPrefix(rest, ".")
	if !ok || ext == "" || strings.Contains(ext, "/") {
		return Info{}
	}
	info.Ext = ext

	info.Integration = info.FolderIntegrationRevision != "" || info.FileIntegrationRevision != ""
	info.Valid = true
	return info
}

// splitClassifierExt consumes "(-classifier).ext"
func splitClassifierExt(info *Info, rest string) bool {
	if c, ok := strings.CutPrefix(rest, "-"); ok {
		dot := strings.Index(c, ".")
		if dot <= 0 {
			return false
		}
		info.Classifier = c[:dot]
		rest = c[dot:]
	}
	ext, ok := strings.CutPrefix(rest, ".")
	if !ok || ext == "" {
		return false
	}
	info.Ext = ext
	return true
}
