package promotion

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	// PolicyTruncateAtHyphen drops everything from the first hyphen on
	PolicyTruncateAtHyphen = "truncate-at-hyphen"

	// PolicyStripSnapshot removes the snapshot-expression match and the
	// separator in front of it
	PolicyStripSnapshot = "strip-snapshot"
)

// VersionResolver maps a staged version to its released form. Implementations
// must be pure and must accept any string.
type VersionResolver func(version string, exp SnapshotExpression) string

// TruncateAtHyphen is the default resolver: "2.15-SNAPSHOT" becomes "2.15".
// Projects with real versioning rules are expected to plug in their own.
func TruncateAtHyphen(version string, _ SnapshotExpression) string {
	if i := strings.IndexByte(version, '-'); i >= 0 {
		return version[:i]
	}
	return version
}

// StripSnapshot removes the first match of the snapshot expression, so
// "1.0-rc1-SNAPSHOT" becomes "1.0-rc1". A version without a match is returned
// unchanged.
func StripSnapshot(version string, exp SnapshotExpression) string {
	if exp.pattern == nil {
		return TruncateAtHyphen(version, exp)
	}
	loc := exp.pattern.FindStringIndex(version)
	if loc == nil {
		return version
	}

	head := strings.TrimRight(version[:loc[0]], "-._")
	tail := version[loc[1]:]
	if head == "" {
		tail = strings.TrimLeft(tail, "-._")
	}
	if out := head + tail; out != "" {
		return out
	}
	return version
}

// ResolverFor returns the named version policy
func ResolverFor(policy string) (VersionResolver, error) {
	switch policy {
	case "", PolicyTruncateAtHyphen:
		return TruncateAtHyphen, nil
	case PolicyStripSnapshot:
		return StripSnapshot, nil
	default:
		return nil, fmt.Errorf("unknown version policy %q (supported: %s, %s)", policy, PolicyTruncateAtHyphen, PolicyStripSnapshot)
	}
}

var snapshotExpressions = map[string]*regexp.Regexp{
	"SNAPSHOT": regexp.MustCompile(`SNAPSHOT`),
	"d14":      regexp.MustCompile(`\d{14}`),
	"d8.d6":    regexp.MustCompile(`\d{8}\.\d{6}(?:-\d+)?`),
}

// SnapshotExpression identifies which version strings count as pre-release
type SnapshotExpression struct {
	Name    string
	pattern *regexp.Regexp
}

// ParseSnapshotExpression accepts one of the supported expression names
func ParseSnapshotExpression(name string) (SnapshotExpression, error) {
	pattern, ok := snapshotExpressions[name]
	if !ok {
		return SnapshotExpression{}, fmt.Errorf("%w %q (supported: %s)", ErrUnsupportedSnapshot, name, strings.Join(SupportedSnapshotExpressions(), ", "))
	}
	return SnapshotExpression{Name: name, pattern: pattern}, nil
}

// Matches reports whether version is a pre-release version
func (e SnapshotExpression) Matches(version string) bool {
	return e.pattern != nil && e.pattern.MatchString(version)
}

func (e SnapshotExpression) String() string {
	return e.Name
}

// SupportedSnapshotExpressions lists the accepted expression names
func SupportedSnapshotExpressions() []string {
	names := make([]string, 0, len(snapshotExpressions))
	for name := range snapshotExpressions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
