package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/spf13/cobra"

	"github.com/jonathan/content-pipeline/internal/config"
	"github.com/jonathan/content-pipeline/internal/delivery"
	"github.com/jonathan/content-pipeline/internal/sitecheck"
	"github.com/jonathan/content-pipeline/internal/worker"
)

// housekeepingInterval paces the retention sweeps (inactive job purge and
// deleted-copy destruction); these are much cheaper than delivery sends.
const housekeepingInterval = time.Hour

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the delivery sweeper",
	Long:  `Periodically push due deliveries, probe destination sites for readiness, and run retention housekeeping.`,
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobs := openJobStore(cfg)
	defer jobs.Close()

	pool, ob, copies, err := openPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	sender := delivery.NewSender(ob, copies)
	sites := sitecheck.NewSweeperWithOptions(ob, delivery.NewProber(), sender, sitecheck.Backoff{
		Short:         cfg.SiteCheckShortInterval,
		Long:          cfg.SiteCheckLongInterval,
		ShortAttempts: cfg.SiteCheckShortAttempts,
	}, clock.C)

	sweeper := worker.NewSweeper(ob, sender, sites, worker.SweepOptions{
		Interval:         cfg.SweepInterval,
		SendLimit:        cfg.SweepSendLimit,
		SiteCheckEnabled: cfg.SiteCheckEnabled,
	})

	go housekeeping(ctx, jobs, copies)

	log.Printf("Sweeper starting: interval=%s send_limit=%d site_check=%t",
		cfg.SweepInterval, cfg.SweepSendLimit, cfg.SiteCheckEnabled)

	if err := sweeper.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	log.Println("Sweeper stopped")
	return nil
}

// housekeeping purges inactive job state past retention and destroys
// soft-deleted copies whose hold has expired.
func housekeeping(ctx context.Context, jobs interface{ PurgeInactive() (int, error) }, copies interface {
	FinalizeDeleted(ctx context.Context) (int, error)
}) {
	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := jobs.PurgeInactive(); err != nil {
				log.Printf("Housekeeping: purge inactive jobs failed: %v", err)
			} else if n > 0 {
				log.Printf("Housekeeping: purged %d inactive jobs", n)
			}
			if n, err := copies.FinalizeDeleted(ctx); err != nil {
				log.Printf("Housekeeping: finalize deleted copies failed: %v", err)
			} else if n > 0 {
				log.Printf("Housekeeping: destroyed %d expired copies", n)
			}
		}
	}
}
