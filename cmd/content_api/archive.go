package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/jonathan/content-pipeline/internal/archive"
	"github.com/jonathan/content-pipeline/internal/config"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive last month's queue logs to S3",
	Long:  `Collect the previous month's job snapshots, upload them as one JSON object to S3, and clear the hot copy. Intended to run from cron early each month.`,
	RunE:  runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
}

func runArchive(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if cfg.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET environment variable is required")
	}

	jobs := openJobStore(cfg)
	defer jobs.Close()

	archiver, err := archive.New(jobs, cfg.AWSRegion, cfg.S3Bucket, cfg.MonthlyLogsPrefix)
	if err != nil {
		return fmt.Errorf("failed to create archiver: %w", err)
	}

	key, count, err := archiver.ArchivePreviousMonth(context.Background())
	if err != nil {
		return fmt.Errorf("archive failed: %w", err)
	}
	if count == 0 {
		log.Println("No snapshots for the previous month; nothing uploaded")
		return nil
	}

	log.Printf("Archived %d snapshots to %s", count, key)
	return nil
}
