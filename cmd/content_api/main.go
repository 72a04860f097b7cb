// Package main provides the entry point for the content pipeline service.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "content_api",
	Short: "Content pipeline service",
	Long:  "Content pipeline accepts webhook content requests, generates full-site copy with an LLM, and delivers the compiled result to each client's destination site.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
