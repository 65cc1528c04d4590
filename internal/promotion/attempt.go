package promotion

import (
	"log/slog"
	"strconv"
	"time"

	"promoter/internal/build"
	"promoter/internal/store"

	"github.com/google/uuid"
)

// State names the step a promotion attempt is in
type State string

const (
	StateLocateBuild    State = "locate_build"
	StateGuardDuplicate State = "guard_duplicate"
	StatePrepareRelease State = "prepare_release"
	StatePromoteModules State = "promote_modules"
	StateRelink         State = "relink"
	StatePersist        State = "persist"
	StateValidate       State = "validate"
	StateDone           State = "done"
	StateRollback       State = "rollback"
	StateFailed         State = "failed"
)

const (
	// publicationLayout is the timestamp format Ivy expects in info/@publication
	publicationLayout = "20060102150405"

	// StartedLayout is the start-time format of recorded builds
	StartedLayout = "2006-01-02T15:04:05.000-0700"
)

// MissingArtifact is a module artifact for which no staged file was found.
// It is carried into the release build verbatim.
type MissingArtifact struct {
	Module   string
	Artifact build.Artifact
}

// Attempt carries the state of one promotion from start to completion or
// rollback. It is owned by a single Promote call.
type Attempt struct {
	ID        string
	Timestamp time.Time
	Snapshot  SnapshotExpression
	Target    string
	Resolve   VersionResolver
	Logger    *slog.Logger

	state     State
	release   build.Run
	prepared  bool
	persisted bool

	created  []store.RepoPath
	tracked  map[store.RepoPath]bool
	claimed  map[store.RepoPath]bool
	releases map[store.RepoPath]store.RepoPath
	missing  []MissingArtifact
}

func newAttempt(now time.Time, resolve VersionResolver, logger *slog.Logger) *Attempt {
	id := uuid.New().String()
	return &Attempt{
		ID:        id,
		Timestamp: now,
		Resolve:   resolve,
		Logger:    logger.With("attempt", id),
		tracked:   make(map[store.RepoPath]bool),
		claimed:   make(map[store.RepoPath]bool),
		releases:  make(map[store.RepoPath]store.RepoPath),
	}
}

func (a *Attempt) enter(s State) {
	a.state = s
	a.Logger.Debug("promotion state", "state", string(s))
}

// State returns the step the attempt reached
func (a *Attempt) State() State {
	return a.state
}

// Track records a release path as created. It must be called before the path
// is written so that a partially written file is still rolled back.
func (a *Attempt) Track(p store.RepoPath) {
	if a.tracked[p] {
		return
	}
	a.tracked[p] = true
	a.created = append(a.created, p)
}

// Created returns the tracked release paths in creation order
func (a *Attempt) Created() []store.RepoPath {
	return append([]store.RepoPath(nil), a.created...)
}

// ReleasePath returns where the staged file was promoted to, if it was
func (a *Attempt) ReleasePath(staged store.RepoPath) (store.RepoPath, bool) {
	p, ok := a.releases[staged]
	return p, ok
}

func (a *Attempt) recordRelease(staged, released store.RepoPath) {
	a.releases[staged] = released
}

// Missing returns the artifacts that had no staged file
func (a *Attempt) Missing() []MissingArtifact {
	return append([]MissingArtifact(nil), a.missing...)
}

func (a *Attempt) recordMissing(module string, art build.Artifact) {
	a.missing = append(a.missing, MissingArtifact{Module: module, Artifact: art})
}

// PublicationDate formats the attempt timestamp for Ivy descriptors
func (a *Attempt) PublicationDate() string {
	return a.Timestamp.Format(publicationLayout)
}

// TimestampMillis formats the attempt timestamp as epoch milliseconds
func (a *Attempt) TimestampMillis() string {
	return strconv.FormatInt(a.Timestamp.UnixMilli(), 10)
}

// Started formats the attempt timestamp as a build start time
func (a *Attempt) Started() string {
	return a.Timestamp.Format(StartedLayout)
}
