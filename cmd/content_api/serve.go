package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/content-pipeline/internal/config"
	"github.com/jonathan/content-pipeline/internal/server"
)

var (
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes the webhook intake, queue control and delivery management endpoints.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if cfg.APIBearerToken == "" {
		return fmt.Errorf("API_BEARER_TOKEN environment variable is required")
	}

	jobs := openJobStore(cfg)
	defer jobs.Close()

	pool, ob, copies, err := openPostgres(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	srv, err := server.New(server.Config{
		Port:              servePort,
		APIBearerToken:    cfg.APIBearerToken,
		AdminPasswordHash: cfg.AdminPasswordHash,
	}, jobs, ob, copies)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}
