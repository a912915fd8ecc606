// Package main is the entry point for the litscout CLI.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the litscout CLI.
var rootCmd = &cobra.Command{
	Use:   "litscout",
	Short: "Multi-source scholarly literature retrieval",
	Long: `litscout searches several scholarly literature sources concurrently
(PubMed, bioRxiv, Google Scholar), deduplicates the results by normalized
title, and persists them incrementally so a crashed or timed-out run still
leaves usable output behind.

Configuration comes from config.yaml and LITSCOUT_* environment variables;
API keys are read from the environment only.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
