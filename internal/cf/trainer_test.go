package cf

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosarica/feed-service/internal/cache"
	"github.com/kosarica/feed-service/internal/database"
)

type fakeTrainStore struct {
	triples  []database.TrainingTriple
	loadErr  error
	features map[string]map[string][]float64

	mu       sync.Mutex
	upserted map[string]map[string][]float64
}

func (f *fakeTrainStore) LoadTrainingTriples(ctx context.Context, since time.Time, maxRows int) ([]database.TrainingTriple, error) {
	return f.triples, f.loadErr
}

func (f *fakeTrainStore) LoadFeatures(ctx context.Context, namespace string, dim int) (map[string][]float64, error) {
	return f.features[namespace], nil
}

func (f *fakeTrainStore) UpsertFeatures(ctx context.Context, namespace string, vectors map[string][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upserted == nil {
		f.upserted = make(map[string]map[string][]float64)
	}
	f.upserted[namespace] = vectors
	return nil
}

type fakeTrainCache struct {
	mu       sync.Mutex
	replaced map[string][]cache.ScoredID
	ttls     map[string]time.Duration
}

func (f *fakeTrainCache) ReplaceTopK(ctx context.Context, key string, entries []cache.ScoredID, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaced == nil {
		f.replaced = make(map[string][]cache.ScoredID)
		f.ttls = make(map[string]time.Duration)
	}
	f.replaced[key] = entries
	f.ttls[key] = ttl
	return nil
}

func TestTrainerRunPublishesPerUserTopK(t *testing.T) {
	store := &fakeTrainStore{triples: sampleTriples()}
	c := &fakeTrainCache{}

	trainer := NewTrainer(store, c, TrainerConfig{
		Config: Config{LatentDim: 8, Epochs: 3, Seed: 42, TopK: 2},
	})
	require.NoError(t, trainer.Run(context.Background()))

	// Factors persisted for both namespaces
	require.Contains(t, store.upserted, database.NamespaceUserFactors)
	require.Contains(t, store.upserted, database.NamespaceProductFactors)
	assert.Len(t, store.upserted[database.NamespaceUserFactors], 3)
	assert.Len(t, store.upserted[database.NamespaceProductFactors], 3)

	// One cached set per trained user, capped at TopK, ordered best first
	require.Len(t, c.replaced, 3)
	for _, uid := range []string{"u1", "u2", "u3"} {
		key := cache.UserTopKKey(uid)
		entries, ok := c.replaced[key]
		require.True(t, ok, "missing %s", key)
		require.LessOrEqual(t, len(entries), 2)
		for i := 1; i < len(entries); i++ {
			assert.GreaterOrEqual(t, entries[i-1].Score, entries[i].Score)
		}
		assert.Equal(t, cache.TopKTTL, c.ttls[key])
	}
}

func TestTrainerRunEmptyWindow(t *testing.T) {
	store := &fakeTrainStore{}
	c := &fakeTrainCache{}

	trainer := NewTrainer(store, c, DefaultTrainerConfig())
	require.NoError(t, trainer.Run(context.Background()))

	assert.Empty(t, store.upserted)
	assert.Empty(t, c.replaced)
}

func TestTrainerRunPropagatesLoadError(t *testing.T) {
	store := &fakeTrainStore{loadErr: errors.New("connection refused")}
	trainer := NewTrainer(store, &fakeTrainCache{}, DefaultTrainerConfig())

	assert.Error(t, trainer.Run(context.Background()))
}
