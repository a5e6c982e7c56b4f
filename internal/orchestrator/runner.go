package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"motion-recorder/internal/platform/metrics"
)

// DefaultBackoff is the pause before the pipeline is restarted.
const DefaultBackoff = 5 * time.Second

// Cycler is one restartable unit of work.
type Cycler interface {
	RunCycle(ctx context.Context) error
}

// Runner restarts the pipeline forever. A cycle that errors or panics is
// logged and followed by a fixed backoff; nothing short of ctx cancellation
// stops the loop.
type Runner struct {
	cycle   Cycler
	repo    Repository
	backoff time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewRunner returns a Runner. If backoff <= 0, DefaultBackoff is used.
func NewRunner(cycle Cycler, repo Repository, backoff time.Duration, log *slog.Logger, m *metrics.Metrics) *Runner {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &Runner{cycle: cycle, repo: repo, backoff: backoff, log: log, metrics: m}
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	for {
		err := r.runOnce(ctx)
		r.repo.CycleEnded(err)
		if ctx.Err() != nil {
			r.log.Info("pipeline stopped")
			return
		}

		if err != nil {
			r.metrics.IncRestarts()
			r.log.Error("pipeline cycle aborted, restarting",
				slog.String("error", err.Error()),
				slog.Duration("backoff", r.backoff))
		} else {
			r.log.Info("pipeline cycle ended, reopening stream", slog.Duration("backoff", r.backoff))
		}

		select {
		case <-ctx.Done():
			r.log.Info("pipeline stopped")
			return
		case <-time.After(r.backoff):
		}
	}
}

// runOnce isolates one cycle, turning a panic into an error.
func (r *Runner) runOnce(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in pipeline cycle: %v\n%s", p, debug.Stack())
		}
	}()
	return r.cycle.RunCycle(ctx)
}
