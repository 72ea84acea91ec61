package main

import (
	"github.com/spf13/cobra"

	"github.com/kosarica/feed-service/internal/database"
	"github.com/kosarica/feed-service/internal/jobs"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete interaction and feature rows past retention",
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cleanupCfg := jobs.CleanupConfig{
		InteractionRetentionDays: cfg.Workers.RetentionDays,
		FeatureRetentionDays:     2 * cfg.Workers.RetentionDays,
	}

	if err := jobs.CleanupOldInteractions(cmd.Context(), database.Pool(), cleanupCfg); err != nil {
		return err
	}
	return jobs.CleanupStaleFeatures(cmd.Context(), database.Pool(), cleanupCfg)
}
