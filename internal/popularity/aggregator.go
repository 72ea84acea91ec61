// Package popularity computes windowed weighted interaction aggregates and
// publishes them to the store and the global top-K.
package popularity

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kosarica/feed-service/internal/cache"
	"github.com/kosarica/feed-service/internal/database"
	"github.com/kosarica/feed-service/internal/telemetry"
)

const (
	// WindowDays is the aggregation window
	WindowDays = 30
	// MaxProducts caps the product write-back
	MaxProducts = 50000
	// MaxMerchants caps the merchant rollup
	MaxMerchants = 10000

	metaChunkSize = 500
)

// Store is the repository slice the aggregator needs
type Store interface {
	AggregateProductPopularity(ctx context.Context, since time.Time, limit int) ([]database.ProductScore, error)
	AggregateMerchantPopularity(ctx context.Context, since time.Time, limit int) ([]database.MerchantScore, error)
	UpdateProductPopularity(ctx context.Context, scores []database.ProductScore) error
	UpdateMerchantPopularity(ctx context.Context, scores []database.MerchantScore) error
	ProductMetaByIDs(ctx context.Context, ids []string) (map[string]database.ProductMeta, error)
}

// Cache is the feature cache slice the aggregator writes to
type Cache interface {
	ReplaceGlobalTopK(ctx context.Context, entries []cache.ScoredID) error
	SetProductMeta(ctx context.Context, metas map[string]database.ProductMeta) error
}

// Aggregator runs the popularity batch job
type Aggregator struct {
	store  Store
	cache  Cache
	logger zerolog.Logger
}

// New creates an aggregator
func New(store Store, c Cache) *Aggregator {
	return &Aggregator{
		store:  store,
		cache:  c,
		logger: log.With().Str("component", "popularity").Logger(),
	}
}

// Run performs one full aggregation pass: products, global top-K, meta
// mirror, then the merchant rollup.
func (a *Aggregator) Run(ctx context.Context) error {
	start := time.Now()
	since := start.AddDate(0, 0, -WindowDays)

	scores, err := a.store.AggregateProductPopularity(ctx, since, MaxProducts)
	if err != nil {
		telemetry.WorkerRunErrors.WithLabelValues("aggregate").Inc()
		return fmt.Errorf("aggregate products: %w", err)
	}

	if err := a.store.UpdateProductPopularity(ctx, scores); err != nil {
		telemetry.WorkerRunErrors.WithLabelValues("aggregate").Inc()
		return fmt.Errorf("write product popularity: %w", err)
	}

	entries := make([]cache.ScoredID, 0, len(scores))
	for _, ps := range scores {
		entries = append(entries, cache.ScoredID{ID: ps.ProductID, Score: ps.Score})
	}
	if err := a.cache.ReplaceGlobalTopK(ctx, entries); err != nil {
		telemetry.WorkerRunErrors.WithLabelValues("aggregate").Inc()
		return fmt.Errorf("replace global topk: %w", err)
	}

	// Mirror fresh meta (with the popularity just written) into the cache.
	// Best-effort: a failed chunk leaves stale meta that the ranker
	// repopulates on miss.
	if err := a.mirrorMeta(ctx, scores); err != nil {
		a.logger.Warn().Err(err).Msg("Meta mirror incomplete")
	}

	merchants, err := a.store.AggregateMerchantPopularity(ctx, since, MaxMerchants)
	if err != nil {
		telemetry.WorkerRunErrors.WithLabelValues("aggregate").Inc()
		return fmt.Errorf("aggregate merchants: %w", err)
	}
	if err := a.store.UpdateMerchantPopularity(ctx, merchants); err != nil {
		telemetry.WorkerRunErrors.WithLabelValues("aggregate").Inc()
		return fmt.Errorf("write merchant popularity: %w", err)
	}

	telemetry.WorkerRunDuration.WithLabelValues("aggregate").Observe(time.Since(start).Seconds())
	telemetry.WorkerRowsWritten.WithLabelValues("aggregate").Add(float64(len(scores) + len(merchants)))

	a.logger.Info().
		Int("products", len(scores)).
		Int("merchants", len(merchants)).
		Dur("duration", time.Since(start)).
		Msg("Popularity aggregation completed")

	return nil
}

func (a *Aggregator) mirrorMeta(ctx context.Context, scores []database.ProductScore) error {
	for start := 0; start < len(scores); start += metaChunkSize {
		end := start + metaChunkSize
		if end > len(scores) {
			end = len(scores)
		}

		ids := make([]string, 0, end-start)
		for _, ps := range scores[start:end] {
			ids = append(ids, ps.ProductID)
		}

		metas, err := a.store.ProductMetaByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("fetch meta chunk: %w", err)
		}
		if err := a.cache.SetProductMeta(ctx, metas); err != nil {
			return fmt.Errorf("cache meta chunk: %w", err)
		}
	}
	return nil
}
