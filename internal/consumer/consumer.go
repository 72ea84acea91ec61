// Package consumer drains the event queue and fans each interaction out to
// the session trail, the bandit posteriors, and the interaction log. Multiple
// replicas may run against the same queue; per-session ordering is
// best-effort.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kosarica/feed-service/internal/bandit"
	"github.com/kosarica/feed-service/internal/cache"
	"github.com/kosarica/feed-service/internal/database"
	"github.com/kosarica/feed-service/internal/pkg/cuid2"
	"github.com/kosarica/feed-service/internal/telemetry"
)

// Event is the wire shape produced by the ingest endpoint
type Event struct {
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId"`
	ProductID string `json:"productId"`
	Type      string `json:"type"`
}

// Queue is the event source
type Queue interface {
	PopEvent(ctx context.Context, timeout time.Duration) ([]byte, error)
	QueueDepth(ctx context.Context) (int64, error)
}

// TrailCache updates session trails
type TrailCache interface {
	PushSessionTrail(ctx context.Context, sessionID, productID string) error
}

// Store is the slice of the repository the consumer needs
type Store interface {
	ProductMetaByIDs(ctx context.Context, ids []string) (map[string]database.ProductMeta, error)
	InsertInteraction(ctx context.Context, in database.Interaction) error
}

// Recorder records bandit outcomes
type Recorder interface {
	Record(ctx context.Context, kind, id string, success bool)
}

const (
	popTimeout    = 1 * time.Second
	idleDelay     = 50 * time.Millisecond
	errorBackoff  = 1 * time.Second
	depthInterval = 10 * time.Second
)

// Consumer is the long-lived event loop
type Consumer struct {
	queue    Queue
	trails   TrailCache
	store    Store
	recorder Recorder
	logger   zerolog.Logger
}

// New creates a consumer
func New(queue Queue, trails TrailCache, store Store, recorder Recorder) *Consumer {
	return &Consumer{
		queue:    queue,
		trails:   trails,
		store:    store,
		recorder: recorder,
		logger:   log.With().Str("component", "consumer").Logger(),
	}
}

// Run drains the queue until ctx is cancelled. The in-flight event is always
// finished before returning.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info().Msg("Starting event consumer")

	var lastDepth time.Time
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Event consumer stopping")
			return
		default:
		}

		if time.Since(lastDepth) >= depthInterval {
			if depth, err := c.queue.QueueDepth(ctx); err == nil {
				telemetry.EventQueueDepth.Set(float64(depth))
			}
			lastDepth = time.Now()
		}

		payload, err := c.queue.PopEvent(ctx, popTimeout)
		if err != nil {
			if errors.Is(err, cache.ErrCacheMiss) {
				// Empty queue, yield briefly before re-blocking
				sleep(ctx, idleDelay)
				continue
			}
			if ctx.Err() != nil {
				c.logger.Info().Msg("Event consumer stopping")
				return
			}
			c.logger.Error().Err(err).Msg("Event pop failed, backing off")
			sleep(ctx, errorBackoff)
			continue
		}

		c.Process(ctx, payload)
	}
}

// Process handles a single raw event. Each step is independent: a failed
// bandit update or interaction append never aborts the event.
func (c *Consumer) Process(ctx context.Context, payload []byte) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		c.logger.Warn().Err(err).Msg("Discarding malformed event")
		telemetry.EventsProcessed.WithLabelValues("malformed").Inc()
		return
	}

	evType := database.InteractionType(ev.Type)
	if ev.ProductID == "" || !evType.Valid() {
		c.logger.Warn().
			Str("product_id", ev.ProductID).
			Str("type", ev.Type).
			Msg("Discarding invalid event")
		telemetry.EventsProcessed.WithLabelValues("malformed").Inc()
		return
	}

	failed := false

	// 1. Session trail, one retry on transient failure
	if ev.SessionID != "" {
		if err := c.trails.PushSessionTrail(ctx, ev.SessionID, ev.ProductID); err != nil {
			if err = c.trails.PushSessionTrail(ctx, ev.SessionID, ev.ProductID); err != nil {
				c.logger.Warn().Err(err).Str("session_id", ev.SessionID).Msg("Session trail update failed")
				failed = true
			}
		}
	}

	// 2. Bandit outcomes on the product's merchant and category
	if outcome, ok := banditOutcome(evType); ok {
		metas, err := c.store.ProductMetaByIDs(ctx, []string{ev.ProductID})
		if err != nil {
			c.logger.Warn().Err(err).Str("product_id", ev.ProductID).Msg("Meta lookup failed, skipping bandit update")
			failed = true
		} else if meta, ok := metas[ev.ProductID]; ok {
			c.recorder.Record(ctx, bandit.KindMerchant, meta.MerchantID, outcome)
			c.recorder.Record(ctx, bandit.KindCategory, meta.CategoryID, outcome)
		}
	}

	// 3. Interaction log
	interaction := database.Interaction{
		ID:        cuid2.GeneratePrefixedId("int"),
		ProductID: ev.ProductID,
		Type:      evType,
		Value:     1,
		CreatedAt: time.Now().UTC(),
	}
	if ev.UserID != "" {
		interaction.UserID = &ev.UserID
	}
	if err := c.store.InsertInteraction(ctx, interaction); err != nil {
		c.logger.Warn().Err(err).Str("product_id", ev.ProductID).Msg("Interaction append failed")
		failed = true
	}

	if failed {
		telemetry.EventsProcessed.WithLabelValues("failed").Inc()
	} else {
		telemetry.EventsProcessed.WithLabelValues("ok").Inc()
	}
}

// banditOutcome maps an interaction type to a bandit outcome. CART is
// neutral: it signals intent, not merchant quality either way.
func banditOutcome(t database.InteractionType) (success, recorded bool) {
	switch t {
	case database.InteractionClick, database.InteractionPurchase:
		return true, true
	case database.InteractionView:
		return false, true
	}
	return false, false
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
