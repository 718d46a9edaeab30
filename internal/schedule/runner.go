package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Runner runs Job once at start, then on every Interval until ctx ends.
// With AlignUTCMidnight the first tick after the start-up run is the next
// UTC midnight. Job errors are logged and never stop the loop.
type Runner struct {
	Name             string
	Interval         time.Duration
	AlignUTCMidnight bool
	Job              Job
	Logger           *zap.Logger

	now func() time.Time
}

func (r *Runner) Run(ctx context.Context) {
	r.runOnce(ctx)

	if r.AlignUTCMidnight {
		now := r.clock()
		wait := time.NewTimer(NextUTCMidnight(now).Sub(now))
		select {
		case <-ctx.Done():
			wait.Stop()
			return
		case <-wait.C:
		}
		r.runOnce(ctx)
	}

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("scheduler stopped", zap.String("job", r.Name))
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	start := time.Now()
	if err := r.Job(ctx); err != nil {
		r.Logger.Error("scheduled job failed", zap.String("job", r.Name), zap.Error(err))
		return
	}
	r.Logger.Debug("scheduled job finished", zap.String("job", r.Name), zap.Duration("took", time.Since(start)))
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// NextUTCMidnight returns the first UTC midnight strictly after t.
func NextUTCMidnight(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
}
