package workflow

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/jonathan/content-pipeline/internal/content"
	"github.com/jonathan/content-pipeline/internal/joblog"
	"github.com/jonathan/content-pipeline/internal/jobstore"
)

// generatePages fans the units out under the concurrency bound. A control
// sentinel observed between units stops admission and waits for in-flight
// units to drain; a unit that exhausts its attempts counts as failed without
// failing the job.
func (r *Runner) generatePages(ctx context.Context, jobID string, jl *joblog.Logger, payload *IntakePayload, doc *content.SitemapDoc, units []content.SitemapRow) (envelopes []*content.PageEnvelope, done, failed int, err error) {
	sem := semaphore.NewWeighted(int64(r.opts.MaxConcurrentPages))
	results := make([]*content.PageEnvelope, len(units))

	// The done/failed pair is the only shared mutable state in the fan-out.
	var mu sync.Mutex
	var wg sync.WaitGroup

	var ctrlErr error
	for i, row := range units {
		if cerr := r.checkpoint(jobID); cerr != nil {
			ctrlErr = cerr
			break
		}
		if aerr := sem.Acquire(ctx, 1); aerr != nil {
			ctrlErr = aerr
			break
		}

		wg.Add(1)
		go func(i int, row content.SitemapRow) {
			defer wg.Done()
			defer sem.Release(1)

			_ = r.jobs.MergeProgress(jobID, map[string]any{"current": row.Path})
			env, unitErr := r.generateUnit(ctx, payload, doc, row)

			mu.Lock()
			if unitErr != nil {
				failed++
			} else {
				results[i] = env
				done++
			}
			d, f := done, failed
			mu.Unlock()

			if unitErr != nil {
				jl.Errorf("page %s failed: %v", row.Path, unitErr)
				_, _ = r.jobs.IncrCounter(jobID, jobstore.CounterPagesFailed, 1)
			} else {
				jl.Infof("page %s done", row.Path)
				_, _ = r.jobs.IncrCounter(jobID, jobstore.CounterPagesDone, 1)
			}
			_ = r.jobs.MergeProgress(jobID, map[string]any{
				"pages_done": d, "pages_failed": f,
			})
		}(i, row)
	}

	wg.Wait()
	if ctrlErr != nil {
		return nil, done, failed, ctrlErr
	}

	for _, env := range results {
		if env != nil {
			envelopes = append(envelopes, env)
		}
	}
	return envelopes, done, failed, nil
}

// generateUnit runs the outer attempt ladder for one page. Every attempt
// carries its own wall-clock timeout, independent of the control flags.
func (r *Runner) generateUnit(ctx context.Context, payload *IntakePayload, doc *content.SitemapDoc, row content.SitemapRow) (*content.PageEnvelope, error) {
	input := content.GenerationInput{
		Metadata:    payload.Metadata,
		UserData:    payload.UserData,
		SitemapData: doc,
		ThisPage:    &row,
	}

	var lastErr error
	for attempt := 1; attempt <= r.opts.MaxPageRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		unitCtx, cancel := context.WithTimeout(ctx, r.opts.PageTimeout)
		env, err := r.gen.GeneratePage(unitCtx, input)
		cancel()
		if err == nil {
			return env, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
