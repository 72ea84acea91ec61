package main

import (
	"github.com/spf13/cobra"

	"github.com/kosarica/feed-service/internal/database"
	"github.com/kosarica/feed-service/internal/popularity"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Run one popularity aggregation pass",
	Long: `Computes windowed weighted interaction scores for products and
merchants, writes them back to the store, and replaces the cached global
top-K and product meta mirror.`,
	RunE: runAggregate,
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
}

func runAggregate(cmd *cobra.Command, args []string) error {
	store := database.NewStore(database.Pool())
	aggregator := popularity.New(store, cacheClient)
	return aggregator.Run(cmd.Context())
}
