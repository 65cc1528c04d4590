package promotion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"promoter/internal/build"
	"promoter/internal/layout"
	"promoter/internal/registry"
	"promoter/internal/store"
)

const (
	snapshotRepo = "libs-snapshot-local"
	releaseRepo  = "libs-release-local"
)

var promotionTime = time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *store.FileStore
	registry *registry.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	fs, err := store.NewFileStore(filepath.Join(dir, "store"), map[string]string{
		snapshotRepo:         layout.Maven2Default,
		releaseRepo:          layout.Maven2Default,
		"ivy-snapshot-local": layout.IvyDefault,
		"ivy-release-local":  layout.IvyDefault,
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	reg, err := registry.NewRegistry(filepath.Join(dir, "registry.db"))
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	return &fixture{t: t, ctx: context.Background(), store: fs, registry: reg}
}

func (f *fixture) promoter(st ArtifactStore) *Promoter {
	if st == nil {
		st = f.store
	}
	p := NewPromoter(f.registry, st, StaticIdentity("alice"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.Now = func() time.Time { return promotionTime }
	return p
}

// stage deploys content to the snapshot repository with CI properties
func (f *fixture) stage(repo, path, content string) store.FileInfo {
	f.t.Helper()
	p := store.RepoPath{Repo: repo, Path: path}
	if err := f.store.DeployBytes(f.ctx, p, []byte(content)); err != nil {
		f.t.Fatalf("Failed to stage %s: %v", p, err)
	}
	for key, value := range map[string]string{
		"build.name":       "acme",
		PropBuildNumber:    "7",
		PropBuildStatus:    "integration",
		PropBuildTimestamp: "1706698800000",
	} {
		if err := f.store.SetProperty(f.ctx, p, key, value); err != nil {
			f.t.Fatalf("Failed to set property on %s: %v", p, err)
		}
	}
	info, err := f.store.Info(f.ctx, p)
	if err != nil {
		f.t.Fatalf("Failed to read %s: %v", p, err)
	}
	return info
}

func (f *fixture) save(b *build.Build) {
	f.t.Helper()
	if err := f.registry.Save(f.ctx, b); err != nil {
		f.t.Fatalf("Failed to save build: %v", err)
	}
}

func (f *fixture) exists(repo, path string) bool {
	return f.store.Exists(f.ctx, store.RepoPath{Repo: repo, Path: path})
}

// mavenBuild stages acme/7 with two modules; lib depends on core and on an
// external library
func (f *fixture) mavenBuild() *build.Build {
	libJar := f.stage(snapshotRepo, "com/acme/lib/1.0-SNAPSHOT/lib-1.0-SNAPSHOT.jar", "lib classes")
	libPOM := f.stage(snapshotRepo, "com/acme/lib/1.0-SNAPSHOT/lib-1.0-SNAPSHOT.pom", stagedPOM)
	coreJar := f.stage(snapshotRepo, "com/acme/core/1.0-SNAPSHOT/core-1.0-SNAPSHOT.jar", "core classes")

	return &build.Build{
		Name:       "acme",
		Number:     "7",
		Started:    "2024-01-31T11:00:00.000+0000",
		Properties: map[string]string{"vcs.revision": "abc123"},
		Modules: []build.Module{
			{
				ID: "com.acme:lib:1.0-SNAPSHOT",
				Artifacts: []build.Artifact{
					{Type: "jar", Name: "lib-1.0-SNAPSHOT.jar", SHA1: libJar.SHA1},
					{Type: "pom", Name: "lib-1.0-SNAPSHOT.pom", SHA1: libPOM.SHA1},
				},
				Dependencies: []build.Dependency{
					{ID: "com.acme:core:1.0-SNAPSHOT", SHA1: coreJar.SHA1, Scopes: []string{"compile"}, Type: "jar"},
					{ID: "junit:junit:4.13-beta-1", SHA1: "0123456789abcdef", Scopes: []string{"test"}, Type: "jar"},
				},
			},
			{
				ID: "com.acme:core:1.0-SNAPSHOT",
				Artifacts: []build.Artifact{
					{Type: "jar", Name: "core-1.0-SNAPSHOT.jar", SHA1: coreJar.SHA1},
				},
			},
		},
		Files: []store.FileInfo{libJar, libPOM, coreJar},
	}
}

func mavenRequest() Request {
	return Request{
		BuildName:          "acme",
		BuildNumber:        "7",
		SnapshotExpression: "SNAPSHOT",
		TargetRepository:   releaseRepo,
		TriggeredBy:        "jenkins",
	}
}

func TestPromote_MavenBuild(t *testing.T) {
	f := newFixture(t)
	f.save(f.mavenBuild())

	res := f.promoter(nil).Promote(f.ctx, mavenRequest())
	if res.Status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", res.Status, res.Message)
	}
	if res.Artifacts != 3 || res.Release.Number != "7-r" || res.State != StateDone {
		t.Errorf("Unexpected result: %+v", res)
	}

	for _, path := range []string{
		"com/acme/lib/1.0/lib-1.0.jar",
		"com/acme/lib/1.0/lib-1.0.pom",
		"com/acme/core/1.0/core-1.0.jar",
	} {
		if !f.exists(releaseRepo, path) {
			t.Errorf("Expected %s to be released", path)
		}
	}

	pom, err := f.store.Content(f.ctx, store.RepoPath{Repo: releaseRepo, Path: "com/acme/lib/1.0/lib-1.0.pom"})
	if err != nil {
		t.Fatalf("Failed to read released pom: %v", err)
	}
	if strings.Contains(pom, "<version>1.0-SNAPSHOT</version>") {
		t.Errorf("Expected snapshot versions to be resolved:\n%s", pom)
	}
	if !strings.Contains(pom, "<version>4.13-beta-1</version>") {
		t.Errorf("Expected external version to be kept:\n%s", pom)
	}

	props, err := f.store.Properties(f.ctx, store.RepoPath{Repo: releaseRepo, Path: "com/acme/lib/1.0/lib-1.0.jar"})
	if err != nil {
		t.Fatalf("Failed to read properties: %v", err)
	}
	if got := props.First(PropBuildNumber); got != "7-r" {
		t.Errorf("Expected build.number 7-r, got %q", got)
	}
	if got := props.First(PropBuildStatus); got != "release" {
		t.Errorf("Expected build.status release, got %q", got)
	}
	if got := props.First(PropBuildTimestamp); got != "1706702400000" {
		t.Errorf("Expected promotion timestamp, got %q", got)
	}
	if got := props.First("build.name"); got != "acme" {
		t.Errorf("Expected other properties to be copied, got %q", got)
	}

	// Staged files stay in place
	if !f.exists(snapshotRepo, "com/acme/lib/1.0-SNAPSHOT/lib-1.0-SNAPSHOT.jar") {
		t.Error("Expected staged artifact to remain")
	}

	release, err := f.registry.LoadDetailed(f.ctx, res.Release)
	if err != nil {
		t.Fatalf("Failed to load release build: %v", err)
	}
	if release.Started != "2024-01-31T12:00:00.000+0000" {
		t.Errorf("Expected release start time to be the promotion time, got %q", release.Started)
	}
	if release.Properties["vcs.revision"] != "abc123" {
		t.Errorf("Expected build properties to be carried over, got %v", release.Properties)
	}
	if len(release.Files) != 3 {
		t.Errorf("Expected 3 release files, got %d", len(release.Files))
	}

	lib := release.Modules[0]
	if lib.ID != "com.acme:lib:1.0" {
		t.Errorf("Expected module id com.acme:lib:1.0, got %q", lib.ID)
	}
	if lib.Artifacts[0].Name != "lib-1.0.jar" || lib.Artifacts[1].Name != "lib-1.0.pom" {
		t.Errorf("Unexpected artifacts: %+v", lib.Artifacts)
	}
	releasedPOM, _ := f.store.Info(f.ctx, store.RepoPath{Repo: releaseRepo, Path: "com/acme/lib/1.0/lib-1.0.pom"})
	if lib.Artifacts[1].SHA1 != releasedPOM.SHA1 {
		t.Error("Expected pom artifact checksum to match the rewritten file")
	}

	core, _ := f.store.Info(f.ctx, store.RepoPath{Repo: releaseRepo, Path: "com/acme/core/1.0/core-1.0.jar"})
	internal := lib.Dependencies[0]
	if internal.ID != "com.acme:core:1.0" || internal.SHA1 != core.SHA1 {
		t.Errorf("Expected internal dependency to be relinked, got %+v", internal)
	}
	external := lib.Dependencies[1]
	if external.ID != "junit:junit:4.13-beta-1" || external.SHA1 != "0123456789abcdef" {
		t.Errorf("Expected external dependency to be untouched, got %+v", external)
	}

	status := release.Statuses[len(release.Statuses)-1]
	if status.Status != "released" || status.Repository != releaseRepo || status.User != "alice" || status.CIUser != "jenkins" {
		t.Errorf("Unexpected release status: %+v", status)
	}

	staged, err := f.registry.Find(f.ctx, "acme", "7", "")
	if err != nil || len(staged) != 1 {
		t.Errorf("Expected staged build to remain, got %v (%v)", staged, err)
	}
}

func TestPromote_IvyBuild(t *testing.T) {
	f := newFixture(t)

	descriptor := f.stage("ivy-snapshot-local", "acme/app/1.0-20240131120000/ivys/ivy-1.0-20240131120000.xml", stagedIvy)
	jar := f.stage("ivy-snapshot-local", "acme/app/1.0-20240131120000/jars/app-1.0-20240131120000.jar", "app classes")
	f.save(&build.Build{
		Name:    "acme",
		Number:  "7",
		Started: "s1",
		Modules: []build.Module{{
			ID: "acme:app:1.0-20240131120000",
			Artifacts: []build.Artifact{
				{Type: "ivy", Name: "ivy-1.0-20240131120000.xml", SHA1: descriptor.SHA1},
				{Type: "jar", Name: "app-1.0-20240131120000.jar", SHA1: jar.SHA1},
			},
		}},
		Files: []store.FileInfo{descriptor, jar},
	})

	req := mavenRequest()
	req.SnapshotExpression = "d14"
	req.TargetRepository = "ivy-release-local"

	res := f.promoter(nil).Promote(f.ctx, req)
	if res.Status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", res.Status, res.Message)
	}

	text, err := f.store.Content(f.ctx, store.RepoPath{Repo: "ivy-release-local", Path: "acme/app/1.0/ivys/ivy-1.0.xml"})
	if err != nil {
		t.Fatalf("Failed to read released descriptor: %v", err)
	}
	for _, s := range []string{`revision="1.0"`, `status="release"`, `publication="20240131120000"`} {
		if !strings.Contains(text, s) {
			t.Errorf("Expected descriptor to contain %q:\n%s", s, text)
		}
	}
	if !f.exists("ivy-release-local", "acme/app/1.0/jars/app-1.0.jar") {
		t.Error("Expected jar to be released")
	}
}

func TestPromote_AlreadyPromoted(t *testing.T) {
	f := newFixture(t)
	staged := f.mavenBuild()
	f.save(staged)

	released := staged.Clone()
	released.Number = "7-r"
	released.Files = nil
	f.save(released)

	res := f.promoter(nil).Promote(f.ctx, mavenRequest())
	if res.Status != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d: %s", res.Status, res.Message)
	}
	if !strings.Contains(res.Message, ErrAlreadyPromoted.Error()) {
		t.Errorf("Expected already promoted message, got %q", res.Message)
	}
	if f.exists(releaseRepo, "com") {
		t.Error("Expected nothing to be written to the target repository")
	}
}

func TestPromote_Twice(t *testing.T) {
	f := newFixture(t)
	f.save(f.mavenBuild())
	p := f.promoter(nil)

	first := p.Promote(f.ctx, mavenRequest())
	if !first.OK() {
		t.Fatalf("First promotion failed: %s", first.Message)
	}

	p.Now = func() time.Time { return promotionTime.Add(time.Hour) }
	if res := p.Promote(f.ctx, mavenRequest()); res.Status != http.StatusBadRequest {
		t.Errorf("Expected second promotion to be rejected with 400, got %d", res.Status)
	}

	// The first release is left exactly as it was
	for _, path := range []string{
		"com/acme/lib/1.0/lib-1.0.jar",
		"com/acme/lib/1.0/lib-1.0.pom",
		"com/acme/core/1.0/core-1.0.jar",
	} {
		props, err := f.store.Properties(f.ctx, store.RepoPath{Repo: releaseRepo, Path: path})
		if err != nil {
			t.Fatalf("Expected %s to survive the rejected promotion: %v", path, err)
		}
		if got := props.First(PropBuildTimestamp); got != "1706702400000" {
			t.Errorf("Expected %s to keep the first promotion time, got %q", path, got)
		}
	}
	runs, err := f.registry.Find(f.ctx, "acme", "7-r", "")
	if err != nil || len(runs) != 1 || runs[0] != first.Release {
		t.Errorf("Expected the first release build only, got %v (%v)", runs, err)
	}
}

func TestPromote_LocateBuild(t *testing.T) {
	f := newFixture(t)
	first := f.mavenBuild()
	f.save(first)
	second := first.Clone()
	second.Started = "2024-01-31T11:30:00.000+0000"
	f.save(second)

	p := f.promoter(nil)

	req := mavenRequest()
	req.BuildNumber = "8"
	if res := p.Promote(f.ctx, req); res.Status != http.StatusConflict {
		t.Errorf("Expected 409 for unknown build, got %d: %s", res.Status, res.Message)
	}

	res := p.Promote(f.ctx, mavenRequest())
	if res.Status != http.StatusConflict || !strings.Contains(res.Message, ErrAmbiguousBuild.Error()) {
		t.Errorf("Expected 409 for ambiguous build, got %d: %s", res.Status, res.Message)
	}
	if f.exists(releaseRepo, "com") {
		t.Error("Expected nothing to be written for a rejected build")
	}
	if runs, err := f.registry.Find(f.ctx, "acme", "7", ""); err != nil || len(runs) != 2 {
		t.Errorf("Expected both staged runs to remain, got %v (%v)", runs, err)
	}
	if runs, err := f.registry.Find(f.ctx, "acme", "7-r", ""); err != nil || len(runs) != 0 {
		t.Errorf("Expected no release build, got %v (%v)", runs, err)
	}

	req = mavenRequest()
	req.BuildStarted = second.Started
	if res := p.Promote(f.ctx, req); !res.OK() {
		t.Errorf("Expected start time to select one run, got %d: %s", res.Status, res.Message)
	}
}

func TestPromote_BadRequests(t *testing.T) {
	f := newFixture(t)
	f.save(f.mavenBuild())
	p := f.promoter(nil)
	p.Targets = func(repo string) bool { return repo == releaseRepo }

	testCases := []struct {
		name   string
		modify func(r *Request)
	}{
		{"missing build name", func(r *Request) { r.BuildName = "" }},
		{"missing snapshot expression", func(r *Request) { r.SnapshotExpression = "" }},
		{"missing target", func(r *Request) { r.TargetRepository = "" }},
		{"unsupported snapshot expression", func(r *Request) { r.SnapshotExpression = "RC" }},
		{"unknown target", func(r *Request) { r.TargetRepository = "libs-other-local" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := mavenRequest()
			tc.modify(&req)
			res := p.Promote(f.ctx, req)
			if res.Status != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", res.Status, res.Message)
			}
			if res.RolledBack {
				t.Error("Rejected request should not be rolled back")
			}
		})
	}
}

// failingStore fails the nth write to the store, and every delete of
// undeletable
type failingStore struct {
	*store.FileStore
	failOn      int
	writes      int
	undeletable store.RepoPath
}

func (s *failingStore) fail() bool {
	s.writes++
	return s.writes == s.failOn
}

func (s *failingStore) Copy(ctx context.Context, src, dst store.RepoPath) error {
	if s.fail() {
		return errors.New("disk full")
	}
	return s.FileStore.Copy(ctx, src, dst)
}

func (s *failingStore) Delete(ctx context.Context, p store.RepoPath) error {
	if p == s.undeletable {
		return errors.New("permission denied")
	}
	return s.FileStore.Delete(ctx, p)
}

func (s *failingStore) Deploy(ctx context.Context, dst store.RepoPath, content io.Reader) error {
	if s.fail() {
		return errors.New("disk full")
	}
	return s.FileStore.Deploy(ctx, dst, content)
}

func TestPromote_RollsBackOnWriteFailure(t *testing.T) {
	for _, failOn := range []int{1, 2, 3} {
		f := newFixture(t)
		f.save(f.mavenBuild())

		res := f.promoter(&failingStore{FileStore: f.store, failOn: failOn}).Promote(f.ctx, mavenRequest())
		if res.Status != http.StatusInternalServerError {
			t.Fatalf("write %d: expected status 500, got %d: %s", failOn, res.Status, res.Message)
		}
		if !res.RolledBack || !strings.Contains(res.Message, "disk full") {
			t.Errorf("write %d: unexpected result %+v", failOn, res)
		}

		if f.exists(releaseRepo, "com") {
			t.Errorf("write %d: expected release folders to be pruned", failOn)
		}
		runs, err := f.registry.Find(f.ctx, "acme", "7-r", "")
		if err != nil || len(runs) != 0 {
			t.Errorf("write %d: expected no release build, got %v (%v)", failOn, runs, err)
		}
		if !f.exists(snapshotRepo, "com/acme/lib/1.0-SNAPSHOT/lib-1.0-SNAPSHOT.pom") {
			t.Errorf("write %d: staged files must survive a rollback", failOn)
		}
	}
}

func TestPromote_RollbackKeepsUnrelatedFiles(t *testing.T) {
	f := newFixture(t)
	f.save(f.mavenBuild())

	// An earlier release shares the com/acme folder
	if err := f.store.DeployBytes(f.ctx, store.RepoPath{Repo: releaseRepo, Path: "com/acme/old/0.9/old-0.9.jar"}, []byte("old")); err != nil {
		t.Fatalf("Failed to deploy: %v", err)
	}

	res := f.promoter(&failingStore{FileStore: f.store, failOn: 3}).Promote(f.ctx, mavenRequest())
	if res.Status != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", res.Status)
	}
	if f.exists(releaseRepo, "com/acme/lib") {
		t.Error("Expected lib folder to be pruned")
	}
	if !f.exists(releaseRepo, "com/acme/old/0.9/old-0.9.jar") {
		t.Error("Expected unrelated release to survive")
	}
}

func TestPromote_ParityFailure(t *testing.T) {
	f := newFixture(t)
	b := f.mavenBuild()
	extra := f.stage(snapshotRepo, "com/acme/lib/1.0-SNAPSHOT/lib-1.0-SNAPSHOT-javadoc.jar", "docs")
	b.Files = append(b.Files, extra)
	f.save(b)

	res := f.promoter(nil).Promote(f.ctx, mavenRequest())
	if res.Status != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d: %s", res.Status, res.Message)
	}
	if !strings.Contains(res.Message, "created 3 release artifacts for 4 staged artifacts") {
		t.Errorf("Expected parity message, got %q", res.Message)
	}
	if f.exists(releaseRepo, "com") {
		t.Error("Expected release files to be rolled back")
	}
	runs, _ := f.registry.Find(f.ctx, "acme", "7-r", "")
	if len(runs) != 0 {
		t.Errorf("Expected release build to be deleted, got %v", runs)
	}
}

func TestPromote_RollbackContinuesPastDeleteFailure(t *testing.T) {
	f := newFixture(t)
	b := f.mavenBuild()
	extra := f.stage(snapshotRepo, "com/acme/lib/1.0-SNAPSHOT/lib-1.0-SNAPSHOT-javadoc.jar", "docs")
	b.Files = append(b.Files, extra)
	f.save(b)

	stuck := store.RepoPath{Repo: releaseRepo, Path: "com/acme/lib/1.0/lib-1.0.jar"}
	res := f.promoter(&failingStore{FileStore: f.store, undeletable: stuck}).Promote(f.ctx, mavenRequest())
	if res.Status != http.StatusInternalServerError || !res.RolledBack {
		t.Fatalf("Expected a rolled back 500, got %d: %s", res.Status, res.Message)
	}
	if !strings.Contains(res.Message, "created 3 release artifacts for 4 staged artifacts") {
		t.Errorf("Expected the parity failure to be reported, got %q", res.Message)
	}
	if !strings.Contains(res.Message, "rollback left 1 paths behind") {
		t.Errorf("Expected the leftover path to be reported, got %q", res.Message)
	}

	if !f.exists(releaseRepo, stuck.Path) {
		t.Error("Expected the undeletable artifact to remain")
	}
	if f.exists(releaseRepo, "com/acme/lib/1.0/lib-1.0.pom") {
		t.Error("Expected the sweep to delete the pom after the failed delete")
	}
	if f.exists(releaseRepo, "com/acme/core") {
		t.Error("Expected the sweep to delete and prune the core artifact")
	}
	if runs, err := f.registry.Find(f.ctx, "acme", "7-r", ""); err != nil || len(runs) != 0 {
		t.Errorf("Expected release build to be deleted, got %v (%v)", runs, err)
	}
}

func TestPromote_MalformedDescriptor(t *testing.T) {
	f := newFixture(t)
	jar := f.stage(snapshotRepo, "com/acme/lib/1.0-SNAPSHOT/lib-1.0-SNAPSHOT.jar", "lib classes")
	pom := f.stage(snapshotRepo, "com/acme/lib/1.0-SNAPSHOT/lib-1.0-SNAPSHOT.pom", "<project>\n  <<version>1.0-SNAPSHOT</version>\n</project>\n")
	f.save(&build.Build{
		Name:    "acme",
		Number:  "7",
		Started: "s1",
		Modules: []build.Module{{
			ID: "com.acme:lib:1.0-SNAPSHOT",
			Artifacts: []build.Artifact{
				{Type: "jar", Name: "lib-1.0-SNAPSHOT.jar", SHA1: jar.SHA1},
				{Type: "pom", Name: "lib-1.0-SNAPSHOT.pom", SHA1: pom.SHA1},
			},
		}},
		Files: []store.FileInfo{jar, pom},
	})

	res := f.promoter(nil).Promote(f.ctx, mavenRequest())
	if res.Status != http.StatusInternalServerError || !res.RolledBack {
		t.Fatalf("Expected a rolled back 500, got %d: %s", res.Status, res.Message)
	}
	if !strings.Contains(res.Message, "rewrite descriptor") || res.State != StateFailed {
		t.Errorf("Expected a descriptor failure, got %+v", res)
	}
	if f.exists(releaseRepo, "com") {
		t.Error("Expected the copied jar to be rolled back")
	}
	if !f.exists(snapshotRepo, "com/acme/lib/1.0-SNAPSHOT/lib-1.0-SNAPSHOT.pom") {
		t.Error("Expected staged descriptor to remain")
	}
}

func TestPromote_IntoStagingRepository(t *testing.T) {
	f := newFixture(t)
	jar := f.stage(snapshotRepo, "com/acme/lib/1.0/lib-1.0.jar", "lib classes")
	docs := f.stage(snapshotRepo, "com/acme/lib/1.0/lib-1.0-javadoc.jar", "docs")
	f.save(&build.Build{
		Name:    "acme",
		Number:  "7",
		Started: "s1",
		Modules: []build.Module{{
			ID:        "com.acme:lib:1.0",
			Artifacts: []build.Artifact{{Type: "jar", Name: "lib-1.0.jar", SHA1: jar.SHA1}},
		}},
		Files: []store.FileInfo{jar, docs},
	})

	req := mavenRequest()
	req.TargetRepository = snapshotRepo

	res := f.promoter(nil).Promote(f.ctx, req)
	if res.Status != http.StatusInternalServerError || !res.RolledBack {
		t.Fatalf("Expected a rolled back 500, got %d: %s", res.Status, res.Message)
	}
	if !strings.Contains(res.Message, "unchanged from the staged path") {
		t.Errorf("Expected a path mapping failure, got %q", res.Message)
	}

	props, err := f.store.Properties(f.ctx, jar.RepoPath)
	if err != nil {
		t.Fatalf("Expected staged artifact to survive: %v", err)
	}
	if props.First(PropBuildNumber) != "7" || props.First(PropBuildStatus) != "integration" {
		t.Errorf("Expected staged properties to be untouched, got %v", props)
	}
	if content, _ := f.store.Content(f.ctx, jar.RepoPath); content != "lib classes" {
		t.Errorf("Expected staged content to be untouched, got %q", content)
	}
	if runs, _ := f.registry.Find(f.ctx, "acme", "7-r", ""); len(runs) != 0 {
		t.Errorf("Expected no release build, got %v", runs)
	}
}

func TestPromote_MissingArtifactIsKept(t *testing.T) {
	f := newFixture(t)
	b := f.mavenBuild()
	b.Modules[1].Artifacts = append(b.Modules[1].Artifacts, build.Artifact{Type: "zip", Name: "core-dist.zip", SHA1: "feedface"})
	f.save(b)

	res := f.promoter(nil).Promote(f.ctx, mavenRequest())
	if !res.OK() {
		t.Fatalf("Expected promotion to succeed, got %d: %s", res.Status, res.Message)
	}
	if res.Missing != 1 {
		t.Errorf("Expected 1 missing artifact, got %d", res.Missing)
	}

	release, err := f.registry.LoadDetailed(f.ctx, res.Release)
	if err != nil {
		t.Fatalf("Failed to load release build: %v", err)
	}
	arts := release.Modules[1].Artifacts
	if len(arts) != 2 || arts[1].Name != "core-dist.zip" || arts[1].SHA1 != "feedface" {
		t.Errorf("Expected missing artifact to be carried verbatim, got %+v", arts)
	}
}

func TestPromote_StripSnapshotPolicy(t *testing.T) {
	f := newFixture(t)
	jar := f.stage(snapshotRepo, "com/acme/lib/1.0-rc1-SNAPSHOT/lib-1.0-rc1-SNAPSHOT.jar", "rc classes")
	f.save(&build.Build{
		Name:    "acme",
		Number:  "7",
		Started: "s1",
		Modules: []build.Module{{
			ID:        "com.acme:lib:1.0-rc1-SNAPSHOT",
			Artifacts: []build.Artifact{{Type: "jar", Name: "lib-1.0-rc1-SNAPSHOT.jar", SHA1: jar.SHA1}},
		}},
		Files: []store.FileInfo{jar},
	})

	p := f.promoter(nil)
	p.Resolve = StripSnapshot

	res := p.Promote(f.ctx, mavenRequest())
	if !res.OK() {
		t.Fatalf("Expected promotion to succeed, got %d: %s", res.Status, res.Message)
	}
	if !f.exists(releaseRepo, "com/acme/lib/1.0-rc1/lib-1.0-rc1.jar") {
		t.Error("Expected release path to keep the qualifier")
	}
	release, _ := f.registry.LoadDetailed(f.ctx, res.Release)
	if release.Modules[0].ID != "com.acme:lib:1.0-rc1" {
		t.Errorf("Expected module id com.acme:lib:1.0-rc1, got %q", release.Modules[0].ID)
	}
}
