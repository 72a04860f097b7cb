// Package sitecheck gates delivery on destination readiness. Records waiting
// for their site are probed on a growing schedule and promoted to the
// sendable set the moment the probe answers; the poller never gives up.
package sitecheck

import (
	"context"
	"log"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/google/uuid"

	"github.com/jonathan/content-pipeline/internal/outbox"
)

// Backoff is the two-tier probe schedule: a short interval while the site is
// expected soon, then a long interval indefinitely.
type Backoff struct {
	Short         time.Duration
	Long          time.Duration
	ShortAttempts int
}

// DefaultBackoff probes every 5 minutes for the first 12 attempts, then
// hourly forever.
func DefaultBackoff() Backoff {
	return Backoff{Short: 5 * time.Minute, Long: 60 * time.Minute, ShortAttempts: 12}
}

// Interval returns the wait after the n-th failed probe (1-based).
func (b Backoff) Interval(attemptsMade int) time.Duration {
	if attemptsMade <= b.ShortAttempts {
		return b.Short
	}
	return b.Long
}

// Outbox is the delivery-store surface the sweeper needs.
type Outbox interface {
	DueSiteChecks(ctx context.Context, limit int) ([]uuid.UUID, error)
	ClaimSiteCheck(ctx context.Context, id uuid.UUID) (*outbox.Delivery, bool, error)
	SiteCheckPassed(ctx context.Context, id uuid.UUID) (bool, error)
	SiteCheckFailed(ctx context.Context, id uuid.UUID, nextAt time.Time, probeErr string) (bool, error)
}

// Prober answers whether a preview URL is reachable.
type Prober interface {
	Probe(ctx context.Context, url string) (title string, err error)
}

// Sender triggers an immediate delivery attempt for a ready record.
type Sender interface {
	Send(ctx context.Context, id uuid.UUID) (outcome string, won bool, err error)
}

// Sweeper runs one readiness pass over due records.
type Sweeper struct {
	outbox  Outbox
	prober  Prober
	sender  Sender
	backoff Backoff
	clock   clock.Clock
}

// NewSweeper wires a sweeper with the default schedule.
func NewSweeper(ob Outbox, prober Prober, sender Sender) *Sweeper {
	return &Sweeper{
		outbox:  ob,
		prober:  prober,
		sender:  sender,
		backoff: DefaultBackoff(),
		clock:   clock.C,
	}
}

// NewSweeperWithOptions wires a sweeper with an explicit schedule and clock.
func NewSweeperWithOptions(ob Outbox, prober Prober, sender Sender, backoff Backoff, c clock.Clock) *Sweeper {
	return &Sweeper{outbox: ob, prober: prober, sender: sender, backoff: backoff, clock: c}
}

// Sweep claims every due record, probes it, and either promotes it (with an
// immediate send) or schedules the next probe. Returns how many records were
// probed and how many came back ready.
func (s *Sweeper) Sweep(ctx context.Context, limit int) (checked, ready int, err error) {
	due, err := s.outbox.DueSiteChecks(ctx, limit)
	if err != nil {
		return 0, 0, err
	}

	for _, id := range due {
		if ctx.Err() != nil {
			return checked, ready, ctx.Err()
		}

		d, won, err := s.outbox.ClaimSiteCheck(ctx, id)
		if err != nil {
			return checked, ready, err
		}
		if !won {
			continue
		}
		checked++

		if s.check(ctx, d) {
			ready++
		}
	}
	return checked, ready, nil
}

// check probes one claimed record and applies the outcome. Reports whether
// the record came back ready.
func (s *Sweeper) check(ctx context.Context, d *outbox.Delivery) bool {
	var title string
	var probeErr error
	if d.PreviewURL == nil || *d.PreviewURL == "" {
		// Nothing to probe: the record goes straight to the sendable set.
		probeErr = nil
	} else {
		title, probeErr = s.prober.Probe(ctx, *d.PreviewURL)
	}

	if probeErr != nil {
		attempts := d.SiteCheckAttempts + 1
		nextAt := s.clock.Now().Add(s.backoff.Interval(attempts))
		if _, err := s.outbox.SiteCheckFailed(ctx, d.ID, nextAt, probeErr.Error()); err != nil {
			log.Printf("site check %s: revert failed: %v", d.JobID, err)
		}
		return false
	}

	ok, err := s.outbox.SiteCheckPassed(ctx, d.ID)
	if err != nil {
		log.Printf("site check %s: promote failed: %v", d.JobID, err)
		return false
	}
	if !ok {
		return false
	}
	if title != "" {
		log.Printf("site check %s: site up (%s)", d.JobID, title)
	} else {
		log.Printf("site check %s: site up", d.JobID)
	}

	if outcome, won, err := s.sender.Send(ctx, d.ID); err != nil {
		log.Printf("site check %s: immediate send error: %v", d.JobID, err)
	} else if won {
		log.Printf("site check %s: immediate send: %s", d.JobID, outcome)
	}
	return true
}
