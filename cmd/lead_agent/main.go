// Package main provides the entry point for the lead_agent crawl CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lead_agent",
	Short: "Lead Harvester crawl CLI",
	Long:  "Lead Harvester crawls search engines, professional networks, and company websites for business leads, with per-domain rate limiting and proxy rotation.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
