package cf

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kosarica/feed-service/internal/cache"
	"github.com/kosarica/feed-service/internal/database"
	"github.com/kosarica/feed-service/internal/telemetry"
)

// Store is the repository slice the trainer needs
type Store interface {
	LoadTrainingTriples(ctx context.Context, since time.Time, maxRows int) ([]database.TrainingTriple, error)
	LoadFeatures(ctx context.Context, namespace string, dim int) (map[string][]float64, error)
	UpsertFeatures(ctx context.Context, namespace string, vectors map[string][]float64) error
}

// Cache is the feature cache slice the trainer writes top-K sets into
type Cache interface {
	ReplaceTopK(ctx context.Context, key string, entries []cache.ScoredID, ttl time.Duration) error
}

// TrainerConfig extends the model config with data-loading bounds
type TrainerConfig struct {
	Config
	WindowDays int
	MaxRows    int
}

// DefaultTrainerConfig returns the standard trainer settings
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Config:     DefaultConfig(),
		WindowDays: 90,
		MaxRows:    1000000,
	}
}

// Trainer runs the offline CF batch job
type Trainer struct {
	store  Store
	cache  Cache
	cfg    TrainerConfig
	logger zerolog.Logger
}

// NewTrainer creates a trainer
func NewTrainer(store Store, c Cache, cfg TrainerConfig) *Trainer {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 90
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 1000000
	}
	cfg.Config = cfg.Config.withDefaults()

	return &Trainer{
		store:  store,
		cache:  c,
		cfg:    cfg,
		logger: log.With().Str("component", "cf_trainer").Logger(),
	}
}

// Run loads the training window, fits the model, persists factors, and
// replaces every trained user's cached top-K.
func (t *Trainer) Run(ctx context.Context) error {
	start := time.Now()
	since := start.AddDate(0, 0, -t.cfg.WindowDays)

	triples, err := t.store.LoadTrainingTriples(ctx, since, t.cfg.MaxRows)
	if err != nil {
		telemetry.WorkerRunErrors.WithLabelValues("train").Inc()
		return fmt.Errorf("load training data: %w", err)
	}
	if len(triples) == 0 {
		t.logger.Info().Msg("No interactions in window, skipping training")
		return nil
	}

	// Warm-start from the previous run's factors so incremental runs refine
	// instead of relearning. A failed load just means a cold start.
	warmUsers, err := t.store.LoadFeatures(ctx, database.NamespaceUserFactors, t.cfg.LatentDim)
	if err != nil {
		t.logger.Warn().Err(err).Msg("User factor load failed, cold start")
		warmUsers = nil
	}
	warmProducts, err := t.store.LoadFeatures(ctx, database.NamespaceProductFactors, t.cfg.LatentDim)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Product factor load failed, cold start")
		warmProducts = nil
	}

	model := FitWarm(triples, t.cfg.Config, warmUsers, warmProducts)

	if err := t.store.UpsertFeatures(ctx, database.NamespaceUserFactors, model.UserFactors()); err != nil {
		telemetry.WorkerRunErrors.WithLabelValues("train").Inc()
		return fmt.Errorf("persist user factors: %w", err)
	}
	if err := t.store.UpsertFeatures(ctx, database.NamespaceProductFactors, model.ProductFactors()); err != nil {
		telemetry.WorkerRunErrors.WithLabelValues("train").Inc()
		return fmt.Errorf("persist product factors: %w", err)
	}

	written, err := t.publishTopK(ctx, model)
	if err != nil {
		telemetry.WorkerRunErrors.WithLabelValues("train").Inc()
		return fmt.Errorf("publish topk: %w", err)
	}

	telemetry.WorkerRunDuration.WithLabelValues("train").Observe(time.Since(start).Seconds())
	telemetry.WorkerRowsWritten.WithLabelValues("train").Add(float64(written))

	t.logger.Info().
		Int("triples", len(triples)).
		Int("users", len(model.Users())).
		Int("dim", model.Dim).
		Dur("duration", time.Since(start)).
		Msg("CF training completed")

	return nil
}

// publishTopK replaces each user's cached ranking. Users are independent so
// the scoring fans out across cores; each replacement is atomic on its own.
func (t *Trainer) publishTopK(ctx context.Context, model *Model) (int, error) {
	users := model.Users()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, userID := range users {
		userID := userID
		g.Go(func() error {
			top := model.TopKForUser(userID, t.cfg.TopK)
			entries := make([]cache.ScoredID, 0, len(top))
			for _, sp := range top {
				entries = append(entries, cache.ScoredID{ID: sp.ProductID, Score: sp.Score})
			}
			if err := t.cache.ReplaceTopK(gctx, cache.UserTopKKey(userID), entries, cache.TopKTTL); err != nil {
				return fmt.Errorf("user %s: %w", userID, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(users), nil
}
