package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/kosarica/feed-service/internal/database"
	"github.com/kosarica/feed-service/internal/pkg/cuid2"
)

var (
	seedMerchants    int
	seedCategories   int
	seedProducts     int
	seedInteractions int
	seedUsers        int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with development data",
	Long: `Inserts a synthetic catalog (merchants, categories, products) and a
batch of random interactions. Intended for local development only.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().IntVar(&seedMerchants, "merchants", 20, "number of merchants")
	seedCmd.Flags().IntVar(&seedCategories, "categories", 10, "number of categories")
	seedCmd.Flags().IntVar(&seedProducts, "products", 500, "number of products")
	seedCmd.Flags().IntVar(&seedInteractions, "interactions", 5000, "number of interactions")
	seedCmd.Flags().IntVar(&seedUsers, "users", 100, "number of distinct users")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pool := database.Pool()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	merchantIDs := make([]string, seedMerchants)
	for i := range merchantIDs {
		id := cuid2.GeneratePrefixedId("mer")
		if _, err := pool.Exec(ctx, `
			INSERT INTO merchants (id, name, popularity, created_at)
			VALUES ($1, $2, 0, NOW())
		`, id, fmt.Sprintf("Merchant %d", i+1)); err != nil {
			return fmt.Errorf("insert merchant: %w", err)
		}
		merchantIDs[i] = id
	}

	categoryIDs := make([]string, seedCategories)
	for i := range categoryIDs {
		id := cuid2.GeneratePrefixedId("cat")
		if _, err := pool.Exec(ctx, `
			INSERT INTO categories (id, name, created_at)
			VALUES ($1, $2, NOW())
		`, id, fmt.Sprintf("Category %d", i+1)); err != nil {
			return fmt.Errorf("insert category: %w", err)
		}
		categoryIDs[i] = id
	}

	productIDs := make([]string, seedProducts)
	productRows := make([][]interface{}, seedProducts)
	for i := range productIDs {
		id := cuid2.GeneratePrefixedId("prd")
		productIDs[i] = id
		productRows[i] = []interface{}{
			id,
			fmt.Sprintf("Product %d", i+1),
			fmt.Sprintf("Description of product %d", i+1),
			merchantIDs[rng.Intn(len(merchantIDs))],
			categoryIDs[rng.Intn(len(categoryIDs))],
		}
	}
	if _, err := pool.CopyFrom(ctx,
		pgx.Identifier{"products"},
		[]string{"id", "title", "description", "merchant_id", "category_id"},
		pgx.CopyFromRows(productRows),
	); err != nil {
		return fmt.Errorf("copy products: %w", err)
	}

	types := []database.InteractionType{
		database.InteractionView,
		database.InteractionView,
		database.InteractionView,
		database.InteractionClick,
		database.InteractionClick,
		database.InteractionCart,
		database.InteractionPurchase,
	}

	interactionRows := make([][]interface{}, seedInteractions)
	for i := range interactionRows {
		var userID interface{}
		if rng.Float64() < 0.8 {
			userID = fmt.Sprintf("user_%d", rng.Intn(seedUsers)+1)
		}
		interactionRows[i] = []interface{}{
			cuid2.GeneratePrefixedId("int"),
			userID,
			productIDs[rng.Intn(len(productIDs))],
			string(types[rng.Intn(len(types))]),
			1.0,
			time.Now().UTC().Add(-time.Duration(rng.Intn(30*24)) * time.Hour),
		}
	}
	if _, err := pool.CopyFrom(ctx,
		pgx.Identifier{"interactions"},
		[]string{"id", "user_id", "product_id", "type", "value", "created_at"},
		pgx.CopyFromRows(interactionRows),
	); err != nil {
		return fmt.Errorf("copy interactions: %w", err)
	}

	logger.Info().
		Int("merchants", seedMerchants).
		Int("categories", seedCategories).
		Int("products", seedProducts).
		Int("interactions", seedInteractions).
		Msg("Seed completed")

	return nil
}
