package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/autovisiontech/dealership/internal/jobs"
	"github.com/autovisiontech/dealership/internal/media"
)

const (
	// TaskMediaSweep removes uploaded files no record references.
	TaskMediaSweep = "media:sweep"
	// MediaSweepCron runs the sweep nightly.
	MediaSweepCron = "0 3 * * *"
	// DefaultSweepGrace keeps files younger than this regardless of references.
	DefaultSweepGrace = time.Hour
)

// MediaSweepPayload carries scheduling metadata.
type MediaSweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewMediaSweepTask constructs an Asynq task for the media sweep.
func NewMediaSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(MediaSweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMediaSweep, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}

// ReferenceSource lists the file keys (see media.FileKey) of every stored file
// a record still points at.
type ReferenceSource interface {
	ReferencedKeys(ctx context.Context) (map[string]struct{}, error)
}

// PGReferences reads media references from the cars and users tables.
type PGReferences struct {
	Pool *pgxpool.Pool
}

// ReferencedKeys implements ReferenceSource.
func (p PGReferences) ReferencedKeys(ctx context.Context) (map[string]struct{}, error) {
	if p.Pool == nil {
		return nil, errors.New("media sweep: pool not configured")
	}
	rows, err := p.Pool.Query(ctx, `SELECT unnest(images) FROM cars
UNION
SELECT image FROM users WHERE image IS NOT NULL AND image <> ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		if key, ok := media.FileKey(media.Reference(ref)); ok {
			keys[key] = struct{}{}
		}
	}
	return keys, rows.Err()
}

// MediaSweepJob deletes stored files that are unreferenced and older than Grace.
type MediaSweepJob struct {
	Sweeper    *media.Sweeper
	References ReferenceSource
	Grace      time.Duration
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	clock      func() time.Time
}

// NewMediaSweepJob initialises the sweep handler.
func NewMediaSweepJob(sweeper *media.Sweeper, refs ReferenceSource, grace time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *MediaSweepJob {
	if grace <= 0 {
		grace = DefaultSweepGrace
	}
	return &MediaSweepJob{Sweeper: sweeper, References: refs, Grace: grace, Logger: logger, Metrics: metrics}
}

// Handle executes the sweep.
func (j *MediaSweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sweeper == nil || j.References == nil {
		return errors.New("media sweep: handler not configured")
	}
	var payload MediaSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	start := j.now()
	tracker := j.Metrics.Track(TaskMediaSweep)
	defer func() { err = tracker.End(err) }()

	logger := j.logger()
	referenced, err := j.References.ReferencedKeys(ctx)
	if err != nil {
		logger.Error("load media references", slog.Any("error", err))
		return err
	}

	result, err := j.Sweeper.Sweep(ctx, referenced, start.Add(-j.Grace))
	if err != nil {
		logger.Error("sweep failed", slog.Any("error", err))
		return err
	}

	j.Metrics.AddSwept("removed", len(result.Removed))
	j.Metrics.AddSwept("failed", len(result.Failed))
	j.Metrics.AddSwept("referenced", result.Referenced)
	j.Metrics.AddSwept("recent", result.Recent)
	logger.Info("completed media sweep",
		slog.Int("referenced", result.Referenced),
		slog.Int("recent", result.Recent),
		slog.Int("removed", len(result.Removed)),
		slog.Int("failed", len(result.Failed)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *MediaSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskMediaSweep))
	}
	return slog.Default().With(slog.String("job", TaskMediaSweep))
}

func (j *MediaSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
