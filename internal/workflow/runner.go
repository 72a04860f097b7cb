package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/content-pipeline/internal/content"
	"github.com/jonathan/content-pipeline/internal/delivery"
	"github.com/jonathan/content-pipeline/internal/joblog"
	"github.com/jonathan/content-pipeline/internal/jobstore"
	"github.com/jonathan/content-pipeline/internal/outbox"
)

// PageGenerator produces validated generation artifacts.
type PageGenerator interface {
	GenerateSitemap(ctx context.Context, metadata, userData json.RawMessage) (*content.SitemapDoc, error)
	GeneratePage(ctx context.Context, input content.GenerationInput) (*content.PageEnvelope, error)
}

// CopySaver persists sitemap snapshots and compiled copies.
type CopySaver interface {
	SaveSitemap(ctx context.Context, jobID, source string, rowCount int, document any) error
	SaveCopy(ctx context.Context, jobID, clientName string, document any) (string, error)
}

// Enqueuer creates (or refreshes) the delivery record at handoff.
type Enqueuer interface {
	Enqueue(ctx context.Context, p outbox.EnqueueParams) (*outbox.Delivery, error)
}

// Delivery modes: manual waits for an operator, direct goes straight to the
// sendable set, prefill waits for the destination site to come up first.
const (
	ModeManual  = "manual"
	ModePrefill = "prefill"
	ModeDirect  = "direct"
)

// Options tunes one runner.
type Options struct {
	MaxConcurrentPages int
	PageTimeout        time.Duration
	MaxPageRetries     int

	DeliveryMode            string
	DeliveryBaseURLTemplate string
	DeliveryTargetPath      string
	DeliveryNamespace       string
	PreviewBaseDomain       string
	SiteCheckEnabled        bool
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrentPages <= 0 {
		o.MaxConcurrentPages = 4
	}
	if o.PageTimeout <= 0 {
		o.PageTimeout = 240 * time.Second
	}
	if o.MaxPageRetries <= 0 {
		o.MaxPageRetries = 3
	}
	if o.DeliveryMode == "" {
		o.DeliveryMode = ModeManual
	}
	return o
}

// Runner executes one job end to end.
type Runner struct {
	jobs   *jobstore.Store
	copies CopySaver
	outbox Enqueuer
	gen    PageGenerator
	opts   Options
}

// NewRunner wires a runner.
func NewRunner(jobs *jobstore.Store, copies CopySaver, ob Enqueuer, gen PageGenerator, opts Options) *Runner {
	return &Runner{
		jobs:   jobs,
		copies: copies,
		outbox: ob,
		gen:    gen,
		opts:   opts.withDefaults(),
	}
}

// checkpoint reads the control flags. Cancel wins over pause.
func (r *Runner) checkpoint(jobID string) error {
	if canceled, err := r.jobs.IsCanceled(jobID); err != nil {
		return err
	} else if canceled {
		return ErrCanceled
	}
	if paused, err := r.jobs.IsPaused(jobID); err != nil {
		return err
	} else if paused {
		return ErrPaused
	}
	return nil
}

// Execute runs the job and maps the outcome onto its terminal status. The
// returned error is non-nil only for real failures, which the dispatcher may
// count or requeue; pause and cancel resolve to nil.
func (r *Runner) Execute(ctx context.Context, jobID string) error {
	jl := joblog.New(r.jobs, jobID)

	err := r.run(ctx, jobID, jl)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCanceled):
		jl.Warnf("canceled by operator")
		_ = r.jobs.MergeProgress(jobID, map[string]any{"stage": "canceled", "current": ""})
		if serr := r.jobs.SetStatus(jobID, jobstore.StatusCanceled); serr != nil {
			return serr
		}
		return nil
	case errors.Is(err, ErrPaused):
		jl.Warnf("paused by operator; intake payload retained for re-run")
		_ = r.jobs.MergeProgress(jobID, map[string]any{"stage": "paused", "current": ""})
		if serr := r.jobs.SetStatus(jobID, jobstore.StatusPaused); serr != nil {
			return serr
		}
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		// The dispatcher's job timeout fired. Requeue for a fresh run
		// instead of failing: the stored payload makes re-runs idempotent.
		jl.Warnf("job timed out; requeued")
		if merr := r.jobs.MergeProgress(jobID, map[string]any{
			"stage": "queued", "current": "", "requeued_reason": "timeout_requeued",
		}); merr != nil {
			return merr
		}
		if serr := r.jobs.SetStatus(jobID, jobstore.StatusQueued); serr != nil {
			return serr
		}
		return nil
	default:
		jl.Errorf("job failed: %v", err)
		_ = r.jobs.SetResult(jobID, map[string]any{"error": err.Error()})
		_ = r.jobs.MergeProgress(jobID, map[string]any{"stage": "failed", "current": ""})
		if serr := r.jobs.SetStatus(jobID, jobstore.StatusFailed); serr != nil {
			return serr
		}
		return err
	}
}

// run is the stage machine: sitemap -> copy -> compile -> handoff.
func (r *Runner) run(ctx context.Context, jobID string, jl *joblog.Logger) error {
	payloadRaw, err := r.jobs.Payload(jobID)
	if err != nil {
		return err
	}
	payload, err := ParsePayload(payloadRaw)
	if err != nil {
		return err
	}

	if err := r.checkpoint(jobID); err != nil {
		return err
	}
	if err := r.jobs.SetStatus(jobID, jobstore.StatusRunning); err != nil {
		return err
	}
	jl.Infof("job started for %s", payload.ClientName)

	// Stage: sitemap.
	if err := r.jobs.MergeProgress(jobID, map[string]any{"stage": "sitemap", "current": ""}); err != nil {
		return err
	}
	doc, source, err := r.resolveSitemap(ctx, payload)
	if err != nil {
		return fmt.Errorf("sitemap stage: %w", err)
	}
	if err := r.copies.SaveSitemap(ctx, jobID, source, len(doc.Rows), doc); err != nil {
		return fmt.Errorf("sitemap stage: %w", err)
	}
	jl.Infof("sitemap ready (%s, %d rows)", source, len(doc.Rows))

	// Stage: copy.
	if err := r.checkpoint(jobID); err != nil {
		return err
	}
	units, skipped := generationUnits(doc)
	if err := r.jobs.SetCounter(jobID, jobstore.CounterPagesTotal, len(units)); err != nil {
		return err
	}
	if err := r.jobs.SetCounter(jobID, jobstore.CounterPagesSkipped, skipped); err != nil {
		return err
	}
	if err := r.jobs.MergeProgress(jobID, map[string]any{
		"stage": "copy", "current": "", "pages_total": len(units), "pages_skipped": skipped,
	}); err != nil {
		return err
	}
	jl.Infof("generating %d pages (%d skipped)", len(units), skipped)

	envelopes, done, failed, err := r.generatePages(ctx, jobID, jl, payload, doc, units)
	if err != nil {
		return err
	}

	// Stage: compile.
	if err := r.checkpoint(jobID); err != nil {
		return err
	}
	if err := r.jobs.MergeProgress(jobID, map[string]any{"stage": "compile", "current": ""}); err != nil {
		return err
	}
	kinds := content.KindCounts(envelopes)
	for kind, n := range kinds {
		jl.Infof("compiled %d %s pages", n, kind)
	}
	final := content.Compile(envelopes)
	ref, err := r.copies.SaveCopy(ctx, jobID, payload.ClientName, final)
	if err != nil {
		return fmt.Errorf("compile stage: %w", err)
	}

	// Stage: handoff.
	if err := r.checkpoint(jobID); err != nil {
		return err
	}
	d, err := r.enqueueDelivery(ctx, jobID, payload.ClientName, ref)
	if err != nil {
		return fmt.Errorf("handoff stage: %w", err)
	}
	jl.Infof("handoff complete: delivery %s (%s)", d.ID, d.Status)

	result := map[string]any{
		"client_name":   payload.ClientName,
		"pages_total":   len(units),
		"pages_done":    done,
		"pages_failed":  failed,
		"pages_skipped": skipped,
		"page_kinds":    kinds,
		"delivery_id":   d.ID.String(),
	}
	if err := r.jobs.SetResult(jobID, result); err != nil {
		return err
	}
	if err := r.jobs.MergeProgress(jobID, map[string]any{"stage": "completed", "current": ""}); err != nil {
		return err
	}
	// Partial success is still success: a job with failed pages completes.
	return r.jobs.SetStatus(jobID, jobstore.StatusCompleted)
}

// resolveSitemap uses the pre-supplied plan when the intake carried one.
func (r *Runner) resolveSitemap(ctx context.Context, payload *IntakePayload) (*content.SitemapDoc, string, error) {
	if payload.SitemapData != nil && len(payload.SitemapData.Rows) > 0 {
		return payload.SitemapData, "provided", nil
	}
	doc, err := r.gen.GenerateSitemap(ctx, payload.Metadata, payload.UserData)
	if err != nil {
		return nil, "", err
	}
	return doc, "generated", nil
}

// enqueueDelivery builds the destination URLs and creates the outbox record.
func (r *Runner) enqueueDelivery(ctx context.Context, jobID, clientName, payloadRef string) (*outbox.Delivery, error) {
	target, err := delivery.BuildDefaultTargetURL(
		r.opts.DeliveryBaseURLTemplate, r.opts.DeliveryTargetPath,
		r.opts.DeliveryNamespace, clientName,
	)
	if err != nil {
		return nil, err
	}

	var preview string
	if r.opts.SiteCheckEnabled {
		preview, err = delivery.BuildPreviewURL(r.opts.PreviewBaseDomain, clientName)
		if err != nil {
			return nil, err
		}
	}

	return r.outbox.Enqueue(ctx, outbox.EnqueueParams{
		JobID:            jobID,
		ClientName:       clientName,
		PayloadRef:       payloadRef,
		DefaultTargetURL: target,
		PreviewURL:       preview,
		Status:           r.initialDeliveryStatus(preview),
	})
}

// initialDeliveryStatus picks where the record enters the state machine.
func (r *Runner) initialDeliveryStatus(preview string) string {
	if r.opts.SiteCheckEnabled && preview != "" {
		return outbox.StatusWaitingForSite
	}
	if r.opts.DeliveryMode == ModeDirect {
		return outbox.StatusReadyToSend
	}
	return outbox.StatusCompletedPendingSend
}
