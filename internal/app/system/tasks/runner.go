// Package tasks runs the drive's periodic maintenance jobs: trash purge,
// quota reconciliation and the pruning of ledger and stats collections.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/system/metrics"
	"go.uber.org/zap"
)

// ErrUnknownJob is returned by RunOnce for a name that was never registered.
var ErrUnknownJob = errors.New("unknown job")

// Job is one periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run. Zero lets a run continue until Stop.
	Timeout time.Duration
	// SkipInitialRun delays the first run by one Interval.
	SkipInitialRun bool
	Run            func(ctx context.Context) error
}

// JobStatus is a snapshot of one job's history since startup.
type JobStatus struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	Running      bool          `json:"running"`
	Runs         int64         `json:"runs"`
	Failures     int64         `json:"failures"`
	LastStart    time.Time     `json:"last_start,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
}

// Runner ticks each registered job on its own goroutine until Stop.
type Runner struct {
	logger *zap.Logger
	jobs   []Job
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	status map[string]*JobStatus
}

func New(logger *zap.Logger) *Runner {
	return &Runner{logger: logger, status: make(map[string]*JobStatus)}
}

// Register adds a job. It must be called before Start. A job without a
// positive interval is dropped with a warning.
func (r *Runner) Register(job Job) {
	if job.Interval <= 0 {
		r.logger.Warn("job not registered: interval must be positive", zap.String("job", job.Name))
		return
	}
	r.jobs = append(r.jobs, job)
	r.mu.Lock()
	r.status[job.Name] = &JobStatus{Name: job.Name, Interval: job.Interval}
	r.mu.Unlock()
}

// Jobs returns the registered job names in registration order.
func (r *Runner) Jobs() []string {
	names := make([]string, 0, len(r.jobs))
	for _, j := range r.jobs {
		names = append(names, j.Name)
	}
	return names
}

// Status returns a snapshot per job, in registration order.
func (r *Runner) Status() []JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]JobStatus, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, *r.status[j.Name])
	}
	return out
}

func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	for _, job := range r.jobs {
		r.wg.Add(1)
		go r.loop(ctx, job)
	}
	r.logger.Info("background task runner started", zap.Strings("jobs", r.Jobs()))
}

// Stop cancels every job and waits for in-flight runs. When ctx expires
// first it logs the jobs still running and returns ctx.Err().
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("background task runner stopped")
		return nil
	case <-ctx.Done():
		var busy []string
		for _, s := range r.Status() {
			if s.Running {
				busy = append(busy, s.Name)
			}
		}
		r.logger.Warn("background task runner shutdown timed out", zap.Strings("jobs_still_running", busy))
		return ctx.Err()
	}
}

// RunOnce runs the named job now, outside its schedule.
func (r *Runner) RunOnce(ctx context.Context, name string) error {
	for _, job := range r.jobs {
		if job.Name == name {
			return r.execute(ctx, job)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

func (r *Runner) loop(ctx context.Context, job Job) {
	defer r.wg.Done()
	if !job.SkipInitialRun {
		_ = r.execute(ctx, job)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.execute(ctx, job)
		}
	}
}

// execute performs one run and records its outcome. Failures caused by
// shutdown are not counted.
func (r *Runner) execute(ctx context.Context, job Job) error {
	start := time.Now()
	r.update(job.Name, func(s *JobStatus) {
		s.Running = true
		s.LastStart = start
	})

	err := call(ctx, job)
	elapsed := time.Since(start)
	shutdown := err != nil && ctx.Err() != nil

	r.update(job.Name, func(s *JobStatus) {
		s.Running = false
		s.LastDuration = elapsed
		if shutdown {
			return
		}
		s.Runs++
		s.LastError = ""
		if err != nil {
			s.Failures++
			s.LastError = err.Error()
		}
	})

	switch {
	case shutdown:
		r.logger.Debug("job cancelled during shutdown", zap.String("job", job.Name))
	case err != nil:
		metrics.RecordTaskRun(job.Name, false)
		r.logger.Error("job failed", zap.String("job", job.Name), zap.Duration("duration", elapsed), zap.Error(err))
	default:
		metrics.RecordTaskRun(job.Name, true)
		r.logger.Debug("job completed", zap.String("job", job.Name), zap.Duration("duration", elapsed))
	}
	return err
}

func (r *Runner) update(name string, fn func(*JobStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.status[name]; ok {
		fn(s)
	}
}

// call applies the job timeout and converts a panic into an error.
func call(ctx context.Context, job Job) (err error) {
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, p)
		}
	}()
	return job.Run(ctx)
}
