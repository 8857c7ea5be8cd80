package media

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/autovisiontech/dealership/internal/observability"
	"github.com/autovisiontech/dealership/internal/platform/httpx"
)

// MaxFiles is the largest media set a resource may own.
const MaxFiles = 5

// Plan is the outcome of a successful reconciliation check.
type Plan struct {
	Target   MediaSet
	Obsolete []Reference
}

// Reconciler moves a resource's media set to a new target.
type Reconciler struct {
	store   Store
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewReconciler builds a Reconciler.
func NewReconciler(store Store, logger *slog.Logger, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{store: store, logger: logger, metrics: metrics}
}

// Plan computes the target set for an update. A nil keep list replaces the
// whole set with uploaded. When the target is rejected, every uploaded file is
// deleted before returning and existing files are left untouched.
func (rc *Reconciler) Plan(ctx context.Context, existing MediaSet, keep *[]Reference, uploaded []Reference) (Plan, error) {
	target := make(MediaSet, 0, MaxFiles)
	if keep != nil {
		owned := make(map[Reference]struct{}, len(existing))
		for _, ref := range existing {
			owned[ref] = struct{}{}
		}
		for _, ref := range uniqueRefs(*keep) {
			if _, ok := owned[ref]; !ok {
				rc.reject(ctx, "unknown_reference", uploaded)
				return Plan{}, fmt.Errorf("%w: image %s does not belong to this resource", httpx.ErrValidation, ref)
			}
			target = append(target, ref)
		}
	}
	target = append(target, uniqueRefs(uploaded)...)

	if len(target) > MaxFiles {
		rc.reject(ctx, "limit_exceeded", uploaded)
		return Plan{}, fmt.Errorf("%w: maximum %d images allowed", httpx.ErrLimitExceeded, MaxFiles)
	}

	return Plan{Target: target, Obsolete: Difference(existing, target)}, nil
}

// Finalize deletes the files the committed target no longer references.
// Call it only after the record update has committed.
func (rc *Reconciler) Finalize(ctx context.Context, plan Plan) DeleteReport {
	if len(plan.Obsolete) == 0 {
		return DeleteReport{}
	}
	report := rc.store.DeleteMany(context.WithoutCancel(ctx), plan.Obsolete)
	observeReport(rc.metrics, "superseded", report)
	return report
}

// Reconcile plans, commits through commit and then finalizes. A commit error
// is returned unchanged and nothing is deleted.
func (rc *Reconciler) Reconcile(ctx context.Context, existing MediaSet, keep *[]Reference, uploaded []Reference, commit func(context.Context, MediaSet) error) (MediaSet, error) {
	plan, err := rc.Plan(ctx, existing, keep, uploaded)
	if err != nil {
		return nil, err
	}
	if err := commit(ctx, plan.Target); err != nil {
		return nil, err
	}
	rc.Finalize(ctx, plan)
	return plan.Target, nil
}

// Discard deletes files whose owning record is gone.
func (rc *Reconciler) Discard(ctx context.Context, refs []Reference) DeleteReport {
	if len(refs) == 0 {
		return DeleteReport{}
	}
	report := rc.store.DeleteMany(context.WithoutCancel(ctx), refs)
	observeReport(rc.metrics, "owner_deleted", report)
	return report
}

func (rc *Reconciler) reject(ctx context.Context, reason string, uploaded []Reference) {
	rc.metrics.ObserveMediaRejection(reason)
	if len(uploaded) == 0 {
		return
	}
	report := rc.store.DeleteMany(context.WithoutCancel(ctx), uploaded)
	observeReport(rc.metrics, "rollback", report)
	rc.logger.Info("media update rejected", slog.String("reason", reason), slog.Int("removed", len(report.Deleted)))
}

// Difference returns the references in from that are absent in target.
func Difference(from MediaSet, target MediaSet) []Reference {
	keep := make(map[Reference]struct{}, len(target))
	for _, ref := range target {
		keep[ref] = struct{}{}
	}
	var out []Reference
	for _, ref := range uniqueRefs(from) {
		if _, ok := keep[ref]; !ok {
			out = append(out, ref)
		}
	}
	return out
}
