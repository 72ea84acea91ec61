package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CleanupConfig configures retention policies for cleanup jobs
type CleanupConfig struct {
	InteractionRetentionDays int
	FeatureRetentionDays     int
}

// DefaultCleanupConfig returns sensible retention defaults
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		InteractionRetentionDays: 90,  // Training window plus slack
		FeatureRetentionDays:     180, // Orphaned factors linger longer
	}
}

// CleanupOldInteractions removes interaction rows past the retention window.
// The table is append-only and only the recent window feeds aggregation and
// training, so older rows carry no signal.
func CleanupOldInteractions(ctx context.Context, db *pgxpool.Pool, cfg CleanupConfig) error {
	cutoffDate := time.Now().AddDate(0, 0, -cfg.InteractionRetentionDays)

	result, err := db.Exec(ctx, `
		DELETE FROM interactions
		WHERE created_at < $1
	`, cutoffDate)

	if err != nil {
		return fmt.Errorf("cleanup old interactions: %w", err)
	}

	rowsAffected := result.RowsAffected()
	slog.Info("cleaned up old interactions", "rows_deleted", rowsAffected, "cutoff", cutoffDate)

	return nil
}

// CleanupStaleFeatures removes latent-factor rows that no training run has
// refreshed within the retention window. These belong to users or products
// that dropped out of the training data.
func CleanupStaleFeatures(ctx context.Context, db *pgxpool.Pool, cfg CleanupConfig) error {
	cutoffDate := time.Now().AddDate(0, 0, -cfg.FeatureRetentionDays)

	result, err := db.Exec(ctx, `
		DELETE FROM feature_store
		WHERE updated_at < $1
	`, cutoffDate)

	if err != nil {
		return fmt.Errorf("cleanup stale features: %w", err)
	}

	rowsAffected := result.RowsAffected()
	slog.Info("cleaned up stale features", "rows_deleted", rowsAffected, "cutoff", cutoffDate)

	return nil
}
