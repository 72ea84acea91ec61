// Package cache is the typed facade over the fast KV store. It owns the key
// schema shared by the workers, the event consumer, and the ranker, and is
// the only package that talks to redis directly.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kosarica/feed-service/internal/database"
)

// ErrCacheMiss is returned when a key or field is absent. Callers use it to
// distinguish absence from an unavailable cache.
var ErrCacheMiss = errors.New("cache miss")

// Key layout. These patterns are a stable wire contract between the offline
// workers and the online ranker; do not change them without migrating both.
const (
	keyGlobalTopK  = "global:topk"
	keyProductMeta = "product:meta"
	keyEventQueue  = "events"
)

const (
	// TopKTTL bounds staleness of per-user rankings
	TopKTTL = 24 * time.Hour
	// SessionTrailTTL expires idle session trails
	SessionTrailTTL = 24 * time.Hour
	// SessionTrailMax caps the trail length
	SessionTrailMax = 50
)

// UserTopKKey returns the cache key for a user's precomputed top-K
func UserTopKKey(userID string) string {
	return "user:topk:" + userID
}

// PosteriorKey returns the cache key for a bandit posterior. Kind is
// "merchant" or "category".
func PosteriorKey(kind, id string) string {
	return "bandit:" + kind + ":" + id
}

// SessionTrailKey returns the cache key for a session's recent products
func SessionTrailKey(sessionID string) string {
	return "session:" + sessionID + ":recent"
}

// Config holds cache client settings
type Config struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Client is the feature cache handle. It is constructed once at startup and
// passed explicitly into each component; safe for concurrent use.
type Client struct {
	rdb *redis.Client
}

// New creates a cache client from a redis URL
func New(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	return &Client{rdb: redis.NewClient(opts)}, nil
}

// NewFromClient wraps an existing redis client. Used by tests.
func NewFromClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Ping checks cache connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool
func (c *Client) Close() error {
	return c.rdb.Close()
}

// ScoredID is one sorted-set member with its score
type ScoredID struct {
	ID    string
	Score float64
}

// ReplaceTopK atomically replaces a top-K sorted set. Readers observe either
// the old set or the new one, never a partial write; the DEL+ZADD+EXPIRE
// triple runs in one MULTI/EXEC transaction.
func (c *Client) ReplaceTopK(ctx context.Context, key string, entries []ScoredID, ttl time.Duration) error {
	members := make([]redis.Z, 0, len(entries))
	for _, e := range entries {
		members = append(members, redis.Z{Score: e.Score, Member: e.ID})
	}

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(members) > 0 {
		pipe.ZAdd(ctx, key, members...)
	}
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace topk %s: %w", key, err)
	}
	return nil
}

// TopK reads a top-K sorted set, highest score first
func (c *Client) TopK(ctx context.Context, key string, limit int) ([]ScoredID, error) {
	if limit <= 0 {
		limit = -1 // full set
	}
	zs, err := c.rdb.ZRevRangeWithScores(ctx, key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read topk %s: %w", key, err)
	}

	entries := make([]ScoredID, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, ScoredID{ID: id, Score: z.Score})
	}
	return entries, nil
}

// ReplaceGlobalTopK replaces the popularity-derived global top-K
func (c *Client) ReplaceGlobalTopK(ctx context.Context, entries []ScoredID) error {
	return c.ReplaceTopK(ctx, keyGlobalTopK, entries, 0)
}

// GlobalTopK reads the global top-K
func (c *Client) GlobalTopK(ctx context.Context, limit int) ([]ScoredID, error) {
	return c.TopK(ctx, keyGlobalTopK, limit)
}

// SetProductMeta writes product meta entries into the meta hash
func (c *Client) SetProductMeta(ctx context.Context, metas map[string]database.ProductMeta) error {
	if len(metas) == 0 {
		return nil
	}

	fields := make([]interface{}, 0, len(metas)*2)
	for id, meta := range metas {
		blob, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal product meta %s: %w", id, err)
		}
		fields = append(fields, id, blob)
	}

	if err := c.rdb.HSet(ctx, keyProductMeta, fields...).Err(); err != nil {
		return fmt.Errorf("set product meta: %w", err)
	}
	return nil
}

// ProductMeta bulk-reads product meta. Missing ids are simply absent from the
// result; a malformed blob is treated as missing so the store copy wins.
func (c *Client) ProductMeta(ctx context.Context, ids []string) (map[string]database.ProductMeta, error) {
	result := make(map[string]database.ProductMeta, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	vals, err := c.rdb.HMGet(ctx, keyProductMeta, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("get product meta: %w", err)
	}

	for i, val := range vals {
		raw, ok := val.(string)
		if !ok {
			continue
		}
		var meta database.ProductMeta
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			continue
		}
		result[ids[i]] = meta
	}
	return result, nil
}

// IncrPosterior increments one side of a Beta posterior by 1. Field is "a"
// for success, "b" for failure. HINCRBY creates the hash on first touch, so
// a fresh key behaves as the (1,1) default once read through Posterior.
func (c *Client) IncrPosterior(ctx context.Context, kind, id, field string) error {
	if field != "a" && field != "b" {
		return fmt.Errorf("invalid posterior field %q", field)
	}
	if err := c.rdb.HIncrBy(ctx, PosteriorKey(kind, id), field, 1).Err(); err != nil {
		return fmt.Errorf("incr posterior %s/%s: %w", kind, id, err)
	}
	return nil
}

// Posterior reads a Beta posterior, defaulting absent counts to (1,1).
// Returned counts are always >= 1.
func (c *Client) Posterior(ctx context.Context, kind, id string) (alpha, beta int64, err error) {
	vals, err := c.rdb.HMGet(ctx, PosteriorKey(kind, id), "a", "b").Result()
	if err != nil {
		return 0, 0, fmt.Errorf("get posterior %s/%s: %w", kind, id, err)
	}

	alpha = 1 + parseCount(vals[0])
	beta = 1 + parseCount(vals[1])
	return alpha, beta, nil
}

func parseCount(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	var n int64
	if _, err := fmt.Sscan(s, &n); err != nil || n < 0 {
		return 0
	}
	return n
}

// PushSessionTrail left-pushes a product onto a session trail, trims it to
// SessionTrailMax, and refreshes the TTL. The three steps run in one
// transaction so concurrent pushes cannot leave an overlong list.
func (c *Client) PushSessionTrail(ctx context.Context, sessionID, productID string) error {
	key := SessionTrailKey(sessionID)

	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, key, productID)
	pipe.LTrim(ctx, key, 0, SessionTrailMax-1)
	pipe.Expire(ctx, key, SessionTrailTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push session trail %s: %w", sessionID, err)
	}
	return nil
}

// SessionTrail reads the newest n entries of a session trail, newest first
func (c *Client) SessionTrail(ctx context.Context, sessionID string, n int) ([]string, error) {
	if n <= 0 || n > SessionTrailMax {
		n = SessionTrailMax
	}
	ids, err := c.rdb.LRange(ctx, SessionTrailKey(sessionID), 0, int64(n)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read session trail %s: %w", sessionID, err)
	}
	return ids, nil
}

// PushEvent enqueues a raw event payload for the consumer
func (c *Client) PushEvent(ctx context.Context, payload []byte) error {
	if err := c.rdb.LPush(ctx, keyEventQueue, payload).Err(); err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// PopEvent blocks up to timeout for the next event. Returns ErrCacheMiss on
// an empty queue so the consumer can distinguish idle from failure.
func (c *Client) PopEvent(ctx context.Context, timeout time.Duration) ([]byte, error) {
	vals, err := c.rdb.BRPop(ctx, timeout, keyEventQueue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("pop event: %w", err)
	}
	// BRPOP returns [key, value]
	if len(vals) != 2 {
		return nil, ErrCacheMiss
	}
	return []byte(vals[1]), nil
}

// QueueDepth reports the current event backlog, for metrics
func (c *Client) QueueDepth(ctx context.Context) (int64, error) {
	return c.rdb.LLen(ctx, keyEventQueue).Result()
}
