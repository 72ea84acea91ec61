package main

import (
	"github.com/spf13/cobra"

	"github.com/kosarica/feed-service/internal/cf"
	"github.com/kosarica/feed-service/internal/database"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run one collaborative-filtering training pass",
	Long: `Loads the recent interaction window, fits the latent-factor model,
persists the factors, and replaces every trained user's cached top-K.`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	store := database.NewStore(database.Pool())
	trainer := cf.NewTrainer(store, cacheClient, cf.TrainerConfig{
		Config: cf.Config{
			LatentDim:    cfg.Trainer.LatentDim,
			Epochs:       cfg.Trainer.Epochs,
			LearningRate: cfg.Trainer.LearningRate,
			Reg:          cfg.Trainer.Reg,
			TopK:         cfg.Trainer.TopK,
			Seed:         cfg.Trainer.Seed,
		},
		WindowDays: cfg.Trainer.WindowDays,
		MaxRows:    cfg.Trainer.MaxRows,
	})
	return trainer.Run(cmd.Context())
}
