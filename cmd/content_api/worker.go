package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/content-pipeline/internal/config"
	"github.com/jonathan/content-pipeline/internal/genai"
	"github.com/jonathan/content-pipeline/internal/worker"
	"github.com/jonathan/content-pipeline/internal/workflow"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the job worker",
	Long:  `Poll the queue for queued jobs and run the generation workflow for each claimed job.`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if cfg.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobs := openJobStore(cfg)
	defer jobs.Close()

	pool, ob, copies, err := openPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	client, err := genai.NewClient(ctx, genai.DefaultConfig(), cfg.GeminiAPIKey)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer client.Close()

	runner := workflow.NewRunner(jobs, copies, ob,
		genai.NewGenerator(client, cfg.TransientRetries, cfg.BaseBackoff),
		workflow.Options{
			MaxConcurrentPages:      cfg.MaxConcurrentPages,
			PageTimeout:             cfg.PageTimeout,
			MaxPageRetries:          cfg.MaxPageRetries,
			DeliveryMode:            cfg.DeliveryMode,
			DeliveryBaseURLTemplate: cfg.DeliveryBaseURLTemplate,
			DeliveryTargetPath:      cfg.DeliveryTargetPath,
			DeliveryNamespace:       cfg.DeliveryNamespace,
			PreviewBaseDomain:       cfg.PreviewBaseDomain,
			SiteCheckEnabled:        cfg.SiteCheckEnabled,
		})

	dispatcher := worker.NewDispatcher(jobs, runner, worker.DispatcherOptions{
		PollInterval:      cfg.PollInterval,
		JobTimeout:        cfg.JobTimeout,
		MaxConcurrentJobs: cfg.WorkerJobs,
	})

	log.Printf("Worker starting: concurrency=%d poll=%s timeout=%s",
		cfg.WorkerJobs, cfg.PollInterval, cfg.JobTimeout)

	if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	// Let claimed jobs finish their timeout window before exiting.
	log.Println("Worker draining in-flight jobs...")
	if err := dispatcher.Wait(context.Background()); err != nil {
		return err
	}
	log.Println("Worker stopped")
	return nil
}
