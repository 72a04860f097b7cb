// Package worker runs the background halves of the pipeline: the job
// dispatcher that claims queued jobs and executes them, and the periodic
// sweeps that drive the delivery outbox and the site-readiness poller.
// Multiple worker processes may run side by side; every claim goes through a
// conditional transition in the durable stores, so nothing is double-run.
package worker

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jonathan/content-pipeline/internal/jobstore"
)

// JobRunner executes one claimed job end to end.
type JobRunner interface {
	Execute(ctx context.Context, jobID string) error
}

// DispatcherOptions tunes one dispatcher process.
type DispatcherOptions struct {
	// PollInterval is how often the queue index is scanned.
	PollInterval time.Duration
	// JobTimeout is the hard wall clock per job run; expiry requeues.
	JobTimeout time.Duration
	// MaxConcurrentJobs bounds jobs in flight in this process.
	MaxConcurrentJobs int
	// ScanLimit bounds how many queue entries one poll inspects.
	ScanLimit int
}

func (o DispatcherOptions) withDefaults() DispatcherOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 29 * time.Minute
	}
	if o.MaxConcurrentJobs <= 0 {
		o.MaxConcurrentJobs = 2
	}
	if o.ScanLimit <= 0 {
		o.ScanLimit = 100
	}
	return o
}

// Dispatcher polls the queue in order and runs what it can claim.
type Dispatcher struct {
	jobs   *jobstore.Store
	runner JobRunner
	opts   DispatcherOptions
	slots  *semaphore.Weighted
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(jobs *jobstore.Store, runner JobRunner, opts DispatcherOptions) *Dispatcher {
	opts = opts.withDefaults()
	return &Dispatcher{
		jobs:   jobs,
		runner: runner,
		opts:   opts,
		slots:  semaphore.NewWeighted(int64(opts.MaxConcurrentJobs)),
	}
}

// Run polls until the context ends. In-flight jobs get to finish their
// timeout window even after shutdown begins.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.Poll(ctx); err != nil {
				log.Printf("dispatcher poll: %v", err)
			}
		}
	}
}

// Poll scans the queue once, claims every queued job a free slot can take,
// and starts them. Returns how many jobs were started.
func (d *Dispatcher) Poll(ctx context.Context) (int, error) {
	ids, err := d.jobs.List(d.opts.ScanLimit, false)
	if err != nil {
		return 0, err
	}

	started := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return started, ctx.Err()
		}
		if !d.slots.TryAcquire(1) {
			break
		}

		won, err := d.jobs.ClaimQueued(id)
		if err != nil {
			d.slots.Release(1)
			return started, err
		}
		if !won {
			d.slots.Release(1)
			continue
		}

		started++
		go d.runJob(ctx, id)
	}
	return started, nil
}

// Wait blocks until every in-flight job has finished. For shutdown and
// tests.
func (d *Dispatcher) Wait(ctx context.Context) error {
	if err := d.slots.Acquire(ctx, int64(d.opts.MaxConcurrentJobs)); err != nil {
		return err
	}
	d.slots.Release(int64(d.opts.MaxConcurrentJobs))
	return nil
}

func (d *Dispatcher) runJob(ctx context.Context, jobID string) {
	defer d.slots.Release(1)

	// Detach from the poll loop's cancellation but keep the hard timeout:
	// an in-flight job should reach a clean state even during shutdown.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.JobTimeout)
	defer cancel()

	log.Printf("job %s: started", jobID)
	if err := d.runner.Execute(runCtx, jobID); err != nil {
		log.Printf("job %s: failed: %v", jobID, err)
		return
	}

	status, err := d.jobs.Status(jobID)
	if err != nil {
		log.Printf("job %s: status read failed: %v", jobID, err)
		return
	}
	log.Printf("job %s: finished (%s)", jobID, status)
}
