// Package cf trains low-rank latent-factor models over implicit interaction
// feedback and precomputes per-user top-K rankings for the feature cache.
package cf

import (
	"container/heap"
	"math/rand"

	"github.com/kosarica/feed-service/internal/database"
)

// Config contains training hyperparameters
type Config struct {
	// LatentDim is the factor vector dimension. A change of dimension
	// invalidates every stored vector; the loader skips mismatched blobs.
	LatentDim int

	// Epochs is the number of SGD passes over the triples.
	Epochs int

	// LearningRate is the SGD step size.
	LearningRate float64

	// Reg is the L2 regularization strength.
	Reg float64

	// TopK is how many products are retained per user.
	TopK int

	// Seed makes training reproducible for a fixed input order.
	Seed int64
}

// DefaultConfig returns the standard hyperparameters
func DefaultConfig() Config {
	return Config{
		LatentDim:    32,
		Epochs:       3,
		LearningRate: 0.025,
		Reg:          0.01,
		TopK:         200,
		Seed:         42,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LatentDim <= 0 {
		c.LatentDim = d.LatentDim
	}
	if c.Epochs <= 0 {
		c.Epochs = d.Epochs
	}
	if c.LearningRate <= 0 {
		c.LearningRate = d.LearningRate
	}
	if c.Reg <= 0 {
		c.Reg = d.Reg
	}
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.Seed == 0 {
		c.Seed = d.Seed
	}
	return c
}

// Model holds trained factor matrices. Ids are kept in first-seen order so
// every derived computation is deterministic.
type Model struct {
	Dim int

	userFactors    [][]float64
	productFactors [][]float64

	userIndex    map[string]int
	productIndex map[string]int
	users        []string
	products     []string
}

// Fit trains factor matrices with SGD on an implicit-feedback squared loss.
// Given a fixed seed and triple order the result is bitwise reproducible.
func Fit(triples []database.TrainingTriple, cfg Config) *Model {
	return FitWarm(triples, cfg, nil, nil)
}

// FitWarm trains like Fit but seeds known ids from previously trained
// vectors instead of random initialization. Warm vectors must match
// cfg.LatentDim; unknown ids fall back to random init.
func FitWarm(triples []database.TrainingTriple, cfg Config, warmUsers, warmProducts map[string][]float64) *Model {
	cfg = cfg.withDefaults()
	rng := rand.New(rand.NewSource(cfg.Seed))

	m := &Model{
		Dim:          cfg.LatentDim,
		userIndex:    make(map[string]int),
		productIndex: make(map[string]int),
	}

	// Index users and products in first-seen order; vector init order is
	// therefore fixed by the input order, not map iteration.
	for _, t := range triples {
		if _, ok := m.userIndex[t.UserID]; !ok {
			m.userIndex[t.UserID] = len(m.users)
			m.users = append(m.users, t.UserID)
			m.userFactors = append(m.userFactors, startVector(rng, cfg.LatentDim, warmUsers[t.UserID]))
		}
		if _, ok := m.productIndex[t.ProductID]; !ok {
			m.productIndex[t.ProductID] = len(m.products)
			m.products = append(m.products, t.ProductID)
			m.productFactors = append(m.productFactors, startVector(rng, cfg.LatentDim, warmProducts[t.ProductID]))
		}
	}

	eta := cfg.LearningRate
	lambda := cfg.Reg

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		for _, t := range triples {
			u := m.userFactors[m.userIndex[t.UserID]]
			p := m.productFactors[m.productIndex[t.ProductID]]

			e := t.Weight - dot(u, p)
			for i := 0; i < cfg.LatentDim; i++ {
				ui := u[i]
				u[i] += eta * (e*p[i] - lambda*ui)
				p[i] += eta * (e*ui - lambda*p[i])
			}
		}
	}

	return m
}

// startVector copies a warm vector when present, otherwise draws a fresh
// random one. Copying keeps the caller's map untouched during SGD.
func startVector(rng *rand.Rand, dim int, warm []float64) []float64 {
	if len(warm) == dim {
		v := make([]float64, dim)
		copy(v, warm)
		return v
	}
	return initVector(rng, dim)
}

func initVector(rng *rand.Rand, dim int) []float64 {
	v := make([]float64, dim)
	for i := range v {
		v[i] = (rng.Float64() - 0.5) * 0.01 // uniform in [-0.005, 0.005)
	}
	return v
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Users returns the trained user ids in training order
func (m *Model) Users() []string {
	return m.users
}

// UserFactors returns all user vectors keyed by id
func (m *Model) UserFactors() map[string][]float64 {
	out := make(map[string][]float64, len(m.users))
	for i, id := range m.users {
		out[id] = m.userFactors[i]
	}
	return out
}

// ProductFactors returns all product vectors keyed by id
func (m *Model) ProductFactors() map[string][]float64 {
	out := make(map[string][]float64, len(m.products))
	for i, id := range m.products {
		out[id] = m.productFactors[i]
	}
	return out
}

// ScoredProduct is one product with its predicted affinity
type ScoredProduct struct {
	ProductID string
	Score     float64
}

// TopKForUser scores the user against every trained product vector and
// returns the k best, highest first. Exact brute force: the product set is
// bounded by the training cap, so the scan stays cheap relative to training.
func (m *Model) TopKForUser(userID string, k int) []ScoredProduct {
	ui, ok := m.userIndex[userID]
	if !ok || k <= 0 {
		return nil
	}
	u := m.userFactors[ui]

	h := &topKHeap{}
	heap.Init(h)
	for pi, pid := range m.products {
		score := dot(u, m.productFactors[pi])
		if h.Len() < k {
			heap.Push(h, ScoredProduct{ProductID: pid, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = ScoredProduct{ProductID: pid, Score: score}
			heap.Fix(h, 0)
		}
	}

	out := make([]ScoredProduct, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(ScoredProduct)
	}
	return out
}

// topKHeap is a min-heap on score so the root is the weakest retained item
type topKHeap []ScoredProduct

func (h topKHeap) Len() int { return len(h) }
func (h topKHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].ProductID > h[j].ProductID // stable order for ties
}
func (h topKHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *topKHeap) Push(x interface{}) { *h = append(*h, x.(ScoredProduct)) }
func (h *topKHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
