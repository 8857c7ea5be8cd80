package media

import (
	"context"
	"log/slog"
	"time"

	"github.com/autovisiontech/dealership/internal/observability"
)

// SweepResult counts what one sweep did with each stored file.
type SweepResult struct {
	Referenced int
	Recent     int
	Removed    []Reference
	Failed     map[Reference]error
}

// Sweeper removes stored files that no record references.
type Sweeper struct {
	store   *DiskStore
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewSweeper builds a Sweeper over store.
func NewSweeper(store *DiskStore, logger *slog.Logger, metrics *observability.Metrics) *Sweeper {
	return &Sweeper{store: store, logger: logger, metrics: metrics}
}

// Sweep deletes every file whose FileKey is not in referenced and whose
// modification time is before cutoff. Files newer than cutoff may still belong
// to an upload whose request has not committed yet, so they are kept.
func (sw *Sweeper) Sweep(ctx context.Context, referenced map[string]struct{}, cutoff time.Time) (SweepResult, error) {
	var (
		result   SweepResult
		orphaned []Reference
	)
	err := sw.store.Walk(ctx, func(f StoredFile) error {
		if _, ok := referenced[string(f.Kind)+"/"+f.Name]; ok {
			result.Referenced++
			return nil
		}
		if !f.ModTime.Before(cutoff) {
			result.Recent++
			return nil
		}
		orphaned = append(orphaned, f.Ref)
		return nil
	})
	if err != nil {
		return result, err
	}
	if len(orphaned) == 0 {
		return result, nil
	}

	report := sw.store.DeleteMany(ctx, orphaned)
	observeReport(sw.metrics, "sweep", report)
	result.Removed = report.Deleted
	result.Failed = report.Failed
	sw.logger.Info("orphaned media removed", slog.Int("removed", len(report.Deleted)), slog.Int("failed", len(report.Failed)))
	return result, nil
}
