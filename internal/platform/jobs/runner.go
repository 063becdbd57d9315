// Package jobs runs named background jobs on fixed intervals. Jobs are plain
// functions; the same function is invoked by the scheduler, the CLI, and the
// manual-trigger endpoints, so every entry point shares one code path.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is one schedulable unit of work. Implementations must be idempotent:
// a run may overlap a manually triggered run of the same job.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner executes registered jobs until its context is cancelled.
type Runner struct {
	logger zerolog.Logger
	jobs   []Job
	wg     sync.WaitGroup
}

func NewRunner(logger zerolog.Logger) *Runner {
	return &Runner{logger: logger}
}

func (r *Runner) Register(j Job) {
	r.jobs = append(r.jobs, j)
}

// Start launches one goroutine per job. Each job runs once immediately, then
// on every interval tick. Errors are logged and the schedule continues.
func (r *Runner) Start(ctx context.Context) {
	for _, j := range r.jobs {
		j := j
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.runOnce(ctx, j)

			ticker := time.NewTicker(j.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					r.runOnce(ctx, j)
				}
			}
		}()
	}
}

// Wait blocks until all job goroutines have stopped.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) runOnce(ctx context.Context, j Job) {
	start := time.Now()
	if err := j.Run(ctx); err != nil {
		r.logger.Error().Err(err).Str("job", j.Name).Msg("job run failed")
		return
	}
	r.logger.Debug().Str("job", j.Name).Dur("took", time.Since(start)).Msg("job run complete")
}
