package promotion

import (
	"context"

	"promoter/internal/store"
)

// RollbackReport summarizes a compensation sweep
type RollbackReport struct {
	Deleted int
	Pruned  int
	Failed  []store.RepoPath
}

// Clean reports whether every created path was removed
func (r RollbackReport) Clean() bool {
	return len(r.Failed) == 0
}

// rollback deletes every path the attempt created, in creation order, prunes
// folders left empty and removes the release build record. Failures are
// logged and the sweep carries on.
func (p *Promoter) rollback(ctx context.Context, a *Attempt) RollbackReport {
	a.enter(StateRollback)

	// The sweep must finish even if the caller has gone away
	ctx = context.WithoutCancel(ctx)

	var report RollbackReport
	for _, path := range a.Created() {
		if err := p.store.Delete(ctx, path); err != nil {
			a.Logger.Error("rollback failed to delete release artifact", "path", path.String(), "error", err)
			report.Failed = append(report.Failed, path)
			continue
		}
		report.Deleted++
		report.Pruned += p.pruneEmptyParents(ctx, a, path)
	}

	if a.prepared {
		if err := p.registry.Delete(ctx, a.release); err != nil {
			if a.persisted {
				a.Logger.Error("rollback failed to delete release build", "release", a.release.String(), "error", err)
			} else {
				a.Logger.Debug("no release build to delete", "release", a.release.String(), "error", err)
			}
		}
	}

	a.Logger.Info("rollback completed",
		"deleted", report.Deleted,
		"pruned", report.Pruned,
		"failed", len(report.Failed),
	)
	return report
}

// pruneEmptyParents walks up from path deleting folders that became empty,
// stopping at the repository root or the first folder that still has content
func (p *Promoter) pruneEmptyParents(ctx context.Context, a *Attempt, path store.RepoPath) int {
	pruned := 0
	for dir := path.Parent(); !dir.IsRoot(); dir = dir.Parent() {
		children, err := p.store.ListChildren(ctx, dir)
		if err != nil {
			a.Logger.Warn("rollback could not list folder", "path", dir.String(), "error", err)
			return pruned
		}
		if len(children) > 0 {
			return pruned
		}
		if err := p.store.Delete(ctx, dir); err != nil {
			a.Logger.Error("rollback failed to delete empty folder", "path", dir.String(), "error", err)
			return pruned
		}
		pruned++
	}
	return pruned
}
