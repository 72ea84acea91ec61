// Package ranker implements the online feed pipeline: candidate generation
// from the cached top-K sets, fuzzy search, and popularity backfills; score
// fusion with the merchant bandit and session affinity; diversity
// re-ranking; and cursor pagination.
//
// The ranker never fails a request for operational reasons. Every external
// call carries a deadline, and a lost signal degrades the result instead of
// erroring.
package ranker

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kosarica/feed-service/internal/bandit"
	"github.com/kosarica/feed-service/internal/cache"
	"github.com/kosarica/feed-service/internal/database"
	"github.com/kosarica/feed-service/internal/telemetry"
)

// Fusion weights. wText switches on whether the request carries search text.
const (
	weightCF          = 0.45
	weightPopularity  = 0.18
	weightBandit      = 0.12
	weightSession     = 0.10
	weightTextSearch  = 0.20
	weightTextNoQuery = 0.05
)

// Candidate-generation scaling factors
const (
	textBaseFloor    = 0.05
	textBaseScale    = 0.8
	popularityScale  = 0.6
	categoryScale    = 0.5
	sessionAffinityN = 20
)

// Store is the repository slice the ranker reads
type Store interface {
	FuzzySearchProducts(ctx context.Context, query string, limit int) ([]database.FuzzyMatch, error)
	TopProductsByCategory(ctx context.Context, categoryID string, limit int) ([]database.Product, error)
	TopProductsByPopularity(ctx context.Context, limit int) ([]database.Product, error)
	ProductMetaByIDs(ctx context.Context, ids []string) (map[string]database.ProductMeta, error)
}

// Cache is the feature cache slice the ranker reads
type Cache interface {
	TopK(ctx context.Context, key string, limit int) ([]cache.ScoredID, error)
	GlobalTopK(ctx context.Context, limit int) ([]cache.ScoredID, error)
	ProductMeta(ctx context.Context, ids []string) (map[string]database.ProductMeta, error)
	SetProductMeta(ctx context.Context, metas map[string]database.ProductMeta) error
	SessionTrail(ctx context.Context, sessionID string, n int) ([]string, error)
}

// Sampler draws merchant quality samples
type Sampler interface {
	Sample(ctx context.Context, kind, id string) float64
}

// Config holds ranker tunables
type Config struct {
	DefaultLimit     int
	MaxLimit         int
	CandidateCap     int
	FuzzySearchLimit int
	// CallTimeout bounds each individual cache/store call.
	CallTimeout time.Duration
	Diversity   DiversityConfig
}

// DefaultConfig returns the standard ranker settings
func DefaultConfig() Config {
	return Config{
		DefaultLimit:     30,
		MaxLimit:         100,
		CandidateCap:     200,
		FuzzySearchLimit: 200,
		CallTimeout:      400 * time.Millisecond,
		Diversity:        DefaultDiversityConfig(),
	}
}

// Request is one feed query
type Request struct {
	UserID     string
	SessionID  string
	SearchText string
	CategoryID string
	Cursor     string
	Limit      int
}

// Product is the feed projection of a catalog product
type Product struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	MerchantID  string  `json:"merchantId"`
	CategoryID  string  `json:"categoryId"`
	Popularity  float64 `json:"popularity"`
}

// Item is one ranked feed entry
type Item struct {
	Score   float64 `json:"score"`
	Product Product `json:"product"`
}

// Response is a ranked feed page. Cursor is a client-opaque continuation
// token; strict monotonic pagination across requests is not guaranteed.
type Response struct {
	Items  []Item `json:"items"`
	Cursor string `json:"cursor,omitempty"`
}

// candidate is one product under consideration with its generation-phase
// base score and, when present, its text match score.
type candidate struct {
	id   string
	base float64
	text float64
}

// scored is a fully fused candidate, ready for diversity re-ranking
type scored struct {
	id    string
	final float64
	meta  database.ProductMeta
}

// Ranker composes the online pipeline
type Ranker struct {
	store   Store
	cache   Cache
	sampler Sampler
	cfg     Config
	logger  zerolog.Logger
}

// New creates a ranker
func New(store Store, c Cache, sampler Sampler, cfg Config) *Ranker {
	if cfg.DefaultLimit <= 0 {
		cfg = DefaultConfig()
	}
	return &Ranker{
		store:   store,
		cache:   c,
		sampler: sampler,
		cfg:     cfg,
		logger:  log.With().Str("component", "ranker").Logger(),
	}
}

// Rank produces one feed page. It returns a well-formed (possibly empty or
// degraded) response for any input; operational failures are logged, never
// surfaced.
func (r *Ranker) Rank(ctx context.Context, req Request) Response {
	start := time.Now()
	defer func() {
		telemetry.FeedRequestDuration.Observe(time.Since(start).Seconds())
	}()

	limit := req.Limit
	if limit <= 0 {
		limit = r.cfg.DefaultLimit
	}
	if limit > r.cfg.MaxLimit {
		limit = r.cfg.MaxLimit
	}

	candidates := r.gatherCandidates(ctx, req, limit)
	telemetry.FeedCandidateCount.Observe(float64(len(candidates)))
	if len(candidates) == 0 {
		return Response{Items: []Item{}}
	}

	metas := r.hydrateMeta(ctx, candidates)
	trail := r.sessionRecent(ctx, req.SessionID)

	ranked := r.fuse(ctx, req, candidates, metas, trail)
	ranked = Diversify(ranked, r.cfg.Diversity, limit)

	return r.page(ranked, metas, req.Cursor, limit)
}

// gatherCandidates runs the four generation phases in order. Later phases
// observe earlier insertions through the index map, and insertion order is
// preserved for the truncation and tie-breaking rules.
func (r *Ranker) gatherCandidates(ctx context.Context, req Request, limit int) []candidate {
	var out []candidate
	index := make(map[string]int)

	add := func(id string, base float64) {
		if _, ok := index[id]; ok {
			return
		}
		index[id] = len(out)
		out = append(out, candidate{id: id, base: base})
	}

	// 1. Personalized top-K
	if req.UserID != "" {
		entries, err := r.cachedTopK(ctx, cache.UserTopKKey(req.UserID))
		if err != nil {
			r.degrade("cache", err, "User top-K unavailable")
		}
		for _, e := range entries {
			add(e.ID, e.Score)
		}
	}

	// 2. Fuzzy text search
	if req.SearchText != "" {
		matches, err := r.fuzzySearch(ctx, req.SearchText)
		if err != nil {
			r.degrade("store", err, "Fuzzy search unavailable")
		}
		for _, m := range matches {
			base := textBaseFloor + textBaseScale*m.Score
			if i, ok := index[m.ID]; ok {
				if base > out[i].base {
					out[i].base = base
				}
				out[i].text = m.Score
			} else {
				add(m.ID, base)
				out[index[m.ID]].text = m.Score
			}
		}
	}

	// 3. Popularity backfill
	if len(out) < 3*limit {
		entries, err := r.globalTopK(ctx)
		if err != nil {
			r.degrade("cache", err, "Global top-K unavailable")
		}
		if len(entries) == 0 {
			// Cold or unreachable cache: serve the backfill from the store
			// so an anonymous request still gets a page.
			products, serr := r.popularProducts(ctx)
			if serr != nil {
				r.degrade("store", serr, "Popularity backfill unavailable")
			}
			for _, p := range products {
				add(p.ID, popularityScale*p.Popularity)
			}
		}
		for _, e := range entries {
			add(e.ID, popularityScale*e.Score)
		}
	}

	// 4. Category backfill
	if req.CategoryID != "" && len(out) < 2*limit {
		products, err := r.categoryProducts(ctx, req.CategoryID)
		if err != nil {
			r.degrade("store", err, "Category backfill unavailable")
		}
		for _, p := range products {
			add(p.ID, categoryScale*p.Popularity)
		}
	}

	if len(out) > r.cfg.CandidateCap {
		out = out[:r.cfg.CandidateCap]
	}
	return out
}

type scoredMatch struct {
	ID    string
	Score float64
}

func (r *Ranker) cachedTopK(ctx context.Context, key string) ([]scoredMatch, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	entries, err := r.cache.TopK(callCtx, key, r.cfg.CandidateCap)
	if err != nil {
		return nil, err
	}
	out := make([]scoredMatch, 0, len(entries))
	for _, e := range entries {
		out = append(out, scoredMatch{ID: e.ID, Score: e.Score})
	}
	return out, nil
}

func (r *Ranker) globalTopK(ctx context.Context) ([]scoredMatch, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	entries, err := r.cache.GlobalTopK(callCtx, r.cfg.CandidateCap)
	if err != nil {
		return nil, err
	}
	out := make([]scoredMatch, 0, len(entries))
	for _, e := range entries {
		out = append(out, scoredMatch{ID: e.ID, Score: e.Score})
	}
	return out, nil
}

func (r *Ranker) fuzzySearch(ctx context.Context, query string) ([]scoredMatch, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	matches, err := r.store.FuzzySearchProducts(callCtx, query, r.cfg.FuzzySearchLimit)
	if err != nil {
		return nil, err
	}
	out := make([]scoredMatch, 0, len(matches))
	for _, m := range matches {
		score := m.Score
		if score > 1 {
			score = 1
		}
		if score < 0 {
			score = 0
		}
		out = append(out, scoredMatch{ID: m.ProductID, Score: score})
	}
	return out, nil
}

func (r *Ranker) categoryProducts(ctx context.Context, categoryID string) ([]database.Product, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	return r.store.TopProductsByCategory(callCtx, categoryID, r.cfg.CandidateCap)
}

func (r *Ranker) popularProducts(ctx context.Context) ([]database.Product, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	return r.store.TopProductsByPopularity(callCtx, r.cfg.CandidateCap)
}

// hydrateMeta bulk-reads product meta from the cache and falls back to the
// store for misses. Store-hydrated entries are written back to the cache in
// the background; a failed warm never affects the request.
func (r *Ranker) hydrateMeta(ctx context.Context, candidates []candidate) map[string]database.ProductMeta {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.id)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	metas, err := r.cache.ProductMeta(callCtx, ids)
	cancel()
	if err != nil {
		r.degrade("cache", err, "Meta cache unavailable")
		metas = make(map[string]database.ProductMeta)
	}
	telemetry.CacheHits.Add(float64(len(metas)))

	var missing []string
	for _, id := range ids {
		if _, ok := metas[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return metas
	}
	telemetry.CacheMisses.Add(float64(len(missing)))

	storeCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	fetched, err := r.store.ProductMetaByIDs(storeCtx, missing)
	cancel()
	if err != nil {
		r.degrade("store", err, "Meta hydration from store failed")
		return metas
	}
	for id, meta := range fetched {
		metas[id] = meta
	}

	if len(fetched) > 0 {
		go r.warmMetaCache(fetched)
	}

	return metas
}

// warmMetaCache repopulates the meta hash off the request path
func (r *Ranker) warmMetaCache(metas map[string]database.ProductMeta) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.cache.SetProductMeta(ctx, metas); err != nil {
		r.logger.Debug().Err(err).Int("count", len(metas)).Msg("Meta cache warm failed")
	}
}

// sessionRecent reads the newest trail entries for affinity scoring
func (r *Ranker) sessionRecent(ctx context.Context, sessionID string) map[string]struct{} {
	if sessionID == "" {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	ids, err := r.cache.SessionTrail(callCtx, sessionID, sessionAffinityN)
	if err != nil {
		r.degrade("cache", err, "Session trail unavailable")
		return nil
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// fuse combines the base score with popularity, the merchant bandit sample,
// text match, and session affinity. Candidates with missing meta are
// dropped; non-finite inputs are clamped so every final score is finite and
// non-negative.
func (r *Ranker) fuse(ctx context.Context, req Request, candidates []candidate, metas map[string]database.ProductMeta, trail map[string]struct{}) []scored {
	wText := weightTextNoQuery
	if req.SearchText != "" {
		wText = weightTextSearch
	}

	// One draw per merchant per request keeps scoring consistent within a
	// page and bounds cache reads.
	merchantSamples := make(map[string]float64)
	sampleMerchant := func(id string) float64 {
		if v, ok := merchantSamples[id]; ok {
			return v
		}
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		v := r.sampler.Sample(callCtx, bandit.KindMerchant, id)
		cancel()
		merchantSamples[id] = v
		return v
	}

	out := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		meta, ok := metas[c.id]
		if !ok {
			continue
		}

		affinity := 0.0
		if _, hit := trail[c.id]; hit {
			affinity = 1.0
		}

		final := weightCF*c.base +
			weightPopularity*meta.Popularity +
			weightBandit*sampleMerchant(meta.MerchantID) +
			wText*c.text +
			weightSession*affinity

		if math.IsNaN(final) || math.IsInf(final, 0) || final < 0 {
			final = 0
		}

		out = append(out, scored{id: c.id, final: final, meta: meta})
	}

	// Stable sort keeps insertion order as the tie-break
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].final > out[j].final
	})
	return out
}

// page applies the cursor offset and builds the response
func (r *Ranker) page(ranked []scored, metas map[string]database.ProductMeta, cursor string, limit int) Response {
	start := 0
	if cursor != "" {
		for i, s := range ranked {
			if s.id == cursor {
				start = i + 1
				break
			}
		}
	}

	end := start + limit
	if end > len(ranked) {
		end = len(ranked)
	}

	items := make([]Item, 0, end-start)
	for _, s := range ranked[start:end] {
		items = append(items, Item{
			Score: s.final,
			Product: Product{
				ID:          s.id,
				Title:       s.meta.Title,
				Description: s.meta.Description,
				MerchantID:  s.meta.MerchantID,
				CategoryID:  s.meta.CategoryID,
				Popularity:  s.meta.Popularity,
			},
		})
	}

	resp := Response{Items: items}
	if len(items) > 0 {
		resp.Cursor = items[len(items)-1].Product.ID
	}
	return resp
}

func (r *Ranker) degrade(source string, err error, msg string) {
	telemetry.FeedDegraded.WithLabelValues(source).Inc()
	r.logger.Warn().Err(err).Msg(msg)
}
