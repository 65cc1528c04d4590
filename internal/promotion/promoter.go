// Package promotion turns a staged build into its release build.
//
// A promotion locates the staged build, refuses to run twice, copies every
// staged artifact to the target repository under its release path (rewriting
// Ivy and POM descriptors on the way), relinks dependencies produced by the
// build and records the release build. Any failure after the first write
// deletes everything the attempt created.
package promotion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"promoter/internal/build"
	"promoter/internal/layout"
	"promoter/internal/store"
)

// BuildRegistry is the build record storage a promotion reads and writes
type BuildRegistry interface {
	Find(ctx context.Context, name, number, started string) ([]build.Run, error)
	LoadDetailed(ctx context.Context, run build.Run) (*build.Build, error)
	ListArtifactFiles(ctx context.Context, run build.Run) ([]store.FileInfo, error)
	Save(ctx context.Context, b *build.Build) error
	Delete(ctx context.Context, run build.Run) error
}

// ArtifactStore is the repository storage a promotion reads and writes
type ArtifactStore interface {
	Copy(ctx context.Context, src, dst store.RepoPath) error
	Deploy(ctx context.Context, dst store.RepoPath, content io.Reader) error
	Delete(ctx context.Context, p store.RepoPath) error
	ListChildren(ctx context.Context, p store.RepoPath) ([]store.RepoPath, error)
	Content(ctx context.Context, p store.RepoPath) (string, error)
	Info(ctx context.Context, p store.RepoPath) (store.FileInfo, error)
	Properties(ctx context.Context, p store.RepoPath) (store.Properties, error)
	SetProperty(ctx context.Context, p store.RepoPath, key string, values ...string) error
	LayoutInfo(p store.RepoPath) layout.Info
}

// Identity names the user a promotion runs as
type Identity interface {
	CurrentUser(ctx context.Context) string
}

// IdentityFunc adapts a function to Identity
type IdentityFunc func(ctx context.Context) string

func (f IdentityFunc) CurrentUser(ctx context.Context) string { return f(ctx) }

// StaticIdentity always reports the same user
type StaticIdentity string

func (s StaticIdentity) CurrentUser(context.Context) string { return string(s) }

// Request names the staged build to promote and where to put it
type Request struct {
	BuildName          string `json:"build_name"`
	BuildNumber        string `json:"build_number"`
	BuildStarted       string `json:"build_started,omitempty"`
	SnapshotExpression string `json:"snapshot_expression"`
	TargetRepository   string `json:"target_repository"`
	TriggeredBy        string `json:"triggered_by,omitempty"`
}

// Result is the outcome of a promotion. Status follows HTTP semantics.
type Result struct {
	Status     int       `json:"status"`
	Message    string    `json:"message"`
	AttemptID  string    `json:"attempt_id,omitempty"`
	Release    build.Run `json:"release,omitzero"`
	Artifacts  int       `json:"artifacts"`
	Missing    int       `json:"missing,omitempty"`
	State      State     `json:"state,omitempty"`
	RolledBack bool      `json:"rolled_back,omitempty"`
}

// OK reports whether the promotion succeeded
func (r Result) OK() bool {
	return r.Status == http.StatusOK
}

// Promoter runs promotions against a registry and a store
type Promoter struct {
	registry BuildRegistry
	store    ArtifactStore
	identity Identity
	logger   *slog.Logger

	// Resolve maps staged versions to release versions
	Resolve VersionResolver

	// Targets restricts the repositories builds may be promoted to. A nil
	// function accepts any repository.
	Targets func(repo string) bool

	// Now supplies the promotion timestamp
	Now func() time.Time
}

// NewPromoter creates a promoter using the default version policy
func NewPromoter(registry BuildRegistry, st ArtifactStore, identity Identity, logger *slog.Logger) *Promoter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if identity == nil {
		identity = StaticIdentity("")
	}
	return &Promoter{
		registry: registry,
		store:    st,
		identity: identity,
		logger:   logger,
		Resolve:  TruncateAtHyphen,
		Now:      time.Now,
	}
}

// Promote runs one promotion to completion. Rejections come back as 400 or
// 409 with nothing written; failures after the first write are rolled back
// and come back as 500.
func (p *Promoter) Promote(ctx context.Context, req Request) Result {
	start := time.Now()
	a := newAttempt(p.Now(), p.Resolve, p.logger)
	a.Target = req.TargetRepository
	a.Logger = a.Logger.With("build_name", req.BuildName, "build_number", req.BuildNumber)

	a.Logger.Info("promotion started",
		"target", req.TargetRepository,
		"snapshot_expression", req.SnapshotExpression,
	)

	res, err := p.run(ctx, a, req)
	if err == nil {
		a.enter(StateDone)
		res.AttemptID = a.ID
		res.State = StateDone
		a.Logger.Info("promotion completed",
			"release", res.Release.String(),
			"artifacts", res.Artifacts,
			"missing", res.Missing,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return res
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		a.Logger.Warn("promotion rejected", "state", string(a.State()), "status", reqErr.Status, "error", err)
		return Result{Status: reqErr.Status, Message: err.Error(), AttemptID: a.ID, State: a.State()}
	}

	failedAt := a.State()
	a.Logger.Error("promotion failed", "state", string(failedAt), "error", err)

	report := p.rollback(ctx, a)
	a.enter(StateFailed)

	msg := fmt.Sprintf("promotion of %s/%s failed during %s: %v", req.BuildName, req.BuildNumber, failedAt, err)
	if !report.Clean() {
		msg += fmt.Sprintf(" (rollback left %d paths behind)", len(report.Failed))
	}
	return Result{
		Status:     http.StatusInternalServerError,
		Message:    msg,
		AttemptID:  a.ID,
		State:      StateFailed,
		RolledBack: true,
	}
}

func (p *Promoter) run(ctx context.Context, a *Attempt, req Request) (Result, error) {
	a.enter(StateLocateBuild)
	if err := validateRequest(req); err != nil {
		return Result{}, badRequest(err)
	}
	if p.Targets != nil && !p.Targets(req.TargetRepository) {
		return Result{}, badRequest(fmt.Errorf("%w: unknown target repository %q", ErrInvalidParameter, req.TargetRepository))
	}

	runs, err := p.registry.Find(ctx, req.BuildName, req.BuildNumber, req.BuildStarted)
	if err != nil {
		return Result{}, fmt.Errorf("failed to look up build: %w", err)
	}
	switch {
	case len(runs) == 0:
		return Result{}, conflict(fmt.Errorf("%w: %s/%s", ErrBuildNotFound, req.BuildName, req.BuildNumber))
	case len(runs) > 1:
		return Result{}, conflict(fmt.Errorf("%w: %d runs of %s/%s, specify the build start time", ErrAmbiguousBuild, len(runs), req.BuildName, req.BuildNumber))
	}
	stagedRun := runs[0]

	a.enter(StateGuardDuplicate)
	releaseNumber := req.BuildNumber + build.ReleaseSuffix
	existing, err := p.registry.Find(ctx, req.BuildName, releaseNumber, "")
	if err != nil {
		return Result{}, fmt.Errorf("failed to look up release build: %w", err)
	}
	if len(existing) > 0 {
		return Result{}, badRequest(fmt.Errorf("%w: %s/%s exists", ErrAlreadyPromoted, req.BuildName, releaseNumber))
	}

	a.enter(StatePrepareRelease)
	exp, err := ParseSnapshotExpression(req.SnapshotExpression)
	if err != nil {
		return Result{}, badRequest(err)
	}
	a.Snapshot = exp

	staged, err := p.registry.LoadDetailed(ctx, stagedRun)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load build %s: %w", stagedRun, err)
	}
	stagedFiles, err := p.registry.ListArtifactFiles(ctx, stagedRun)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list files of %s: %w", stagedRun, err)
	}

	release := staged.Clone()
	release.Number = releaseNumber
	release.Started = a.Started()
	release.Files = nil
	a.release = release.Run()
	a.prepared = true

	mapper := PathMapper{Resolve: a.Resolve}
	modules := &modulePromoter{
		store:    p.store,
		mapper:   mapper,
		rewriter: DescriptorRewriter{Resolve: a.Resolve},
	}

	a.enter(StatePromoteModules)
	promoted := make([]build.Module, 0, len(release.Modules))
	for _, m := range release.Modules {
		out, err := modules.promote(ctx, a, m, stagedFiles)
		if err != nil {
			return Result{}, fmt.Errorf("module %s: %w", m.ID, err)
		}
		promoted = append(promoted, out)
	}
	release.Modules = promoted

	a.enter(StateRelink)
	linker := &relinker{store: p.store, mapper: mapper}
	relinked := make([]build.Module, 0, len(release.Modules))
	for _, m := range release.Modules {
		out, err := linker.relink(ctx, a, m, stagedFiles)
		if err != nil {
			return Result{}, err
		}
		relinked = append(relinked, out)
	}
	release.Modules = relinked

	a.enter(StatePersist)
	user := p.identity.CurrentUser(ctx)
	release.Statuses = append(release.Statuses, build.ReleaseStatus{
		Status:     "released",
		Comment:    "Promoted build",
		Repository: req.TargetRepository,
		Timestamp:  a.Started(),
		User:       user,
		CIUser:     req.TriggeredBy,
	})

	created := a.Created()
	files := make([]store.FileInfo, 0, len(created))
	for _, path := range created {
		info, err := p.store.Info(ctx, path)
		if err != nil {
			return Result{}, fmt.Errorf("failed to read released file %s: %w", path, err)
		}
		files = append(files, info)
	}
	release.Files = files

	if err := p.registry.Save(ctx, release); err != nil {
		return Result{}, fmt.Errorf("failed to save release build %s: %w", release.Run(), err)
	}
	a.persisted = true

	a.enter(StateValidate)
	if len(created) != len(stagedFiles) {
		return Result{}, &ParityError{Created: len(created), Staged: len(stagedFiles)}
	}

	missing := a.Missing()
	return Result{
		Status: http.StatusOK,
		Message: fmt.Sprintf("Build %s/%s promoted to %s/%s in %s (%d artifacts)",
			req.BuildName, req.BuildNumber, req.BuildName, releaseNumber, req.TargetRepository, len(created)),
		Release:   release.Run(),
		Artifacts: len(created),
		Missing:   len(missing),
	}, nil
}

func validateRequest(req Request) error {
	var missing []string
	if req.BuildName == "" {
		missing = append(missing, "build name")
	}
	if req.BuildNumber == "" {
		missing = append(missing, "build number")
	}
	if req.SnapshotExpression == "" {
		missing = append(missing, "snapshot expression")
	}
	if req.TargetRepository == "" {
		missing = append(missing, "target repository")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingParameter, strings.Join(missing, ", "))
	}
	return nil
}
