// Package retention expires evidence clips of resolved alerts.
package retention

import (
	"context"
	"time"

	"Raksha/internal/domain"
	"Raksha/pkg/errors"
	"Raksha/pkg/logger"
	"Raksha/pkg/scheduler"

	"go.uber.org/zap"
)

type ClipIndex interface {
	ClipsResolvedBefore(ctx context.Context, cutoff time.Time) ([]domain.Alert, error)
	AttachClip(ctx context.Context, id, key string) error
	RecordAction(ctx context.Context, id string, action domain.Action, actor string) error
}

type Blobs interface {
	Delete(ctx context.Context, key string) error
}

type Observer interface {
	RetentionDeleted(n int)
}

type Job struct {
	index    ClipIndex
	blobs    Blobs
	keep     time.Duration
	observer Observer
	now      func() time.Time
}

func NewJob(index ClipIndex, blobs Blobs, days int, observer Observer) *Job {
	if days <= 0 {
		days = 30
	}
	return &Job{
		index:    index,
		blobs:    blobs,
		keep:     time.Duration(days) * 24 * time.Hour,
		observer: observer,
		now:      time.Now,
	}
}

// Run satisfies scheduler.Job.
func (j *Job) Run(ctx context.Context) {
	n, err := j.Sweep(ctx)
	if err != nil {
		logger.Warn("clip retention sweep failed", zap.Int("deleted", n), zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info("clip retention sweep finished", zap.Int("deleted", n))
	}
}

// Sweep deletes every expired clip and clears its key. A clip whose delete
// fails keeps its key and is retried on the next sweep.
func (j *Job) Sweep(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.keep)
	alerts, err := j.index.ClipsResolvedBefore(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "list expired clips")
	}
	var (
		deleted int
		errs    []error
	)
	for _, a := range alerts {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := j.blobs.Delete(ctx, a.ClipKey); err != nil {
			errs = append(errs, errors.Wrapf(err, "delete clip %s", a.ClipKey))
			continue
		}
		if err := j.index.AttachClip(ctx, a.ID, ""); err != nil {
			errs = append(errs, errors.Wrapf(err, "clear clip of %s", a.ID))
			continue
		}
		_ = j.index.RecordAction(ctx, a.ID, domain.ActionClipExpired, "retention")
		deleted++
	}
	if j.observer != nil && deleted > 0 {
		j.observer.RetentionDeleted(deleted)
	}
	return deleted, errors.Join(errs...)
}

// Schedule registers the job on cr under a cron expression.
func Schedule(cr *scheduler.Cron, expr string, job *Job) error {
	if expr == "" {
		return nil
	}
	if _, err := cr.Add(expr, job); err != nil {
		return errors.Mark(err, errors.KindInvalid, "parse retention schedule")
	}
	logger.Info("clip retention scheduled", zap.String("schedule", expr), zap.Duration("keep", job.keep))
	return nil
}
