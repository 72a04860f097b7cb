package worker

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// DueLister finds delivery records ready for a send attempt.
type DueLister interface {
	DueDeliveries(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// Sender performs one claim+send for a delivery record.
type Sender interface {
	Send(ctx context.Context, id uuid.UUID) (outcome string, won bool, err error)
}

// SiteSweeper runs one readiness pass.
type SiteSweeper interface {
	Sweep(ctx context.Context, limit int) (checked, ready int, err error)
}

// SweepOptions tunes the periodic sweeps.
type SweepOptions struct {
	Interval         time.Duration
	SendLimit        int
	SiteCheckEnabled bool
}

func (o SweepOptions) withDefaults() SweepOptions {
	if o.Interval <= 0 {
		o.Interval = time.Minute
	}
	if o.SendLimit <= 0 {
		o.SendLimit = 50
	}
	return o
}

// Sweeper periodically dispatches due deliveries and site checks. It is the
// only producer of delivery attempts besides an explicit send-now.
type Sweeper struct {
	outbox DueLister
	sender Sender
	sites  SiteSweeper
	opts   SweepOptions
}

// NewSweeper wires a sweeper. sites may be nil when readiness polling is
// disabled.
func NewSweeper(ob DueLister, sender Sender, sites SiteSweeper, opts SweepOptions) *Sweeper {
	return &Sweeper{outbox: ob, sender: sender, sites: sites, opts: opts.withDefaults()}
}

// Run sweeps until the context ends.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SweepDeliveries(ctx); err != nil {
				log.Printf("delivery sweep: %v", err)
			}
			if s.opts.SiteCheckEnabled && s.sites != nil {
				if _, ready, err := s.sites.Sweep(ctx, s.opts.SendLimit); err != nil {
					log.Printf("site check sweep: %v", err)
				} else if ready > 0 {
					log.Printf("site check sweep: %d sites came up", ready)
				}
			}
		}
	}
}

// SweepDeliveries claims and sends every due record, bounded by SendLimit.
// Lost claims are expected under concurrent sweepers and counted as skips.
func (s *Sweeper) SweepDeliveries(ctx context.Context) (sent int, err error) {
	due, err := s.outbox.DueDeliveries(ctx, s.opts.SendLimit)
	if err != nil {
		return 0, err
	}

	for _, id := range due {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}

		outcome, won, err := s.sender.Send(ctx, id)
		if err != nil {
			log.Printf("delivery %s: %v", id, err)
			continue
		}
		if !won {
			continue
		}
		sent++
		log.Printf("delivery %s: %s", id, outcome)
	}
	return sent, nil
}
