// Package bandit maintains Beta(a,b) posteriors for merchant and category
// quality and exposes Thompson sampling over them. Posteriors live in the
// feature cache; the module is best-effort and self-healing under traffic.
package bandit

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Posterior kinds
const (
	KindMerchant = "merchant"
	KindCategory = "category"
)

// Neutral is the sample substituted when the cache is unreachable. It keeps
// the ranker producing results during a cache outage.
const Neutral = 0.5

// PosteriorStore is the slice of the cache client the bandit needs
type PosteriorStore interface {
	Posterior(ctx context.Context, kind, id string) (alpha, beta int64, err error)
	IncrPosterior(ctx context.Context, kind, id, field string) error
}

// Sampler draws Thompson samples from cached posteriors
type Sampler struct {
	store  PosteriorStore
	logger zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a sampler. A zero seed uses a fixed default; tests pass their
// own seed for reproducible draws.
func New(store PosteriorStore, seed int64) *Sampler {
	if seed == 0 {
		seed = 1
	}
	return &Sampler{
		store:  store,
		logger: log.With().Str("component", "bandit").Logger(),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Sample draws an approximate Beta(a,b) sample for the key's posterior.
// On cache failure it returns Neutral so ranking degrades instead of failing.
func (s *Sampler) Sample(ctx context.Context, kind, id string) float64 {
	alpha, beta, err := s.store.Posterior(ctx, kind, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("kind", kind).Str("id", id).Msg("Posterior read failed, sampling neutral")
		return Neutral
	}
	return s.SampleBeta(float64(alpha), float64(beta))
}

// SampleBeta produces a sample in (0,1) approximating Beta(a,b) using two
// scaled exponential draws: g = -a*ln(U). Cheap, and within tolerance for
// the count ranges the bandit sees. Resamples if both gammas collapse to 0.
func (s *Sampler) SampleBeta(alpha, beta float64) float64 {
	if alpha < 1 {
		alpha = 1
	}
	if beta < 1 {
		beta = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		ga := -alpha * math.Log(s.uniform())
		gb := -beta * math.Log(s.uniform())
		if ga+gb == 0 {
			continue
		}
		v := ga / (ga + gb)
		// Keep the sample strictly inside (0,1)
		if v <= 0 {
			v = math.SmallestNonzeroFloat64
		}
		if v >= 1 {
			v = 1 - 1e-15
		}
		return v
	}
}

// uniform returns U in (0,1); Float64 can return 0, which ln rejects
func (s *Sampler) uniform() float64 {
	for {
		u := s.rng.Float64()
		if u > 0 {
			return u
		}
	}
}

// Record updates the posterior for an observed outcome: success increments
// a, failure increments b. Failures are logged and dropped.
func (s *Sampler) Record(ctx context.Context, kind, id string, success bool) {
	field := "b"
	if success {
		field = "a"
	}
	if err := s.store.IncrPosterior(ctx, kind, id, field); err != nil {
		s.logger.Warn().Err(err).
			Str("kind", kind).
			Str("id", id).
			Bool("success", success).
			Msg("Dropping bandit outcome")
	}
}
