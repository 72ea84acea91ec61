package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosarica/feed-service/internal/database"
)

// testCache runs an in-process redis and wraps it in a client, so the
// pipelined commands travel the real wire protocol.
func testCache(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestPosteriorDefaultsToUniform(t *testing.T) {
	c, _ := testCache(t)

	alpha, beta, err := c.Posterior(context.Background(), "merchant", "mer_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), alpha)
	assert.Equal(t, int64(1), beta)
}

func TestPosteriorCountsRoundTrip(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, c.IncrPosterior(ctx, "merchant", "mer_1", "a"))
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, c.IncrPosterior(ctx, "merchant", "mer_1", "b"))
	}

	alpha, beta, err := c.Posterior(ctx, "merchant", "mer_1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), alpha)
	assert.Equal(t, int64(3), beta)

	// A different id stays untouched
	alpha, beta, err = c.Posterior(ctx, "merchant", "mer_2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), alpha)
	assert.Equal(t, int64(1), beta)
}

func TestIncrPosteriorRejectsUnknownField(t *testing.T) {
	c, _ := testCache(t)

	err := c.IncrPosterior(context.Background(), "merchant", "mer_1", "x")
	assert.Error(t, err)
}

func TestSessionTrailTrimsToCapNewestFirst(t *testing.T) {
	c, mr := testCache(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		require.NoError(t, c.PushSessionTrail(ctx, "s1", fmt.Sprintf("p%02d", i)))
	}

	ids, err := c.SessionTrail(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, ids, SessionTrailMax)
	assert.Equal(t, "p59", ids[0])
	assert.Equal(t, "p10", ids[len(ids)-1])
	assert.NotContains(t, ids, "p09")

	assert.Equal(t, SessionTrailTTL, mr.TTL(SessionTrailKey("s1")))
}

func TestSessionTrailReadsNewestN(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, c.PushSessionTrail(ctx, "s1", fmt.Sprintf("p%d", i)))
	}

	ids, err := c.SessionTrail(ctx, "s1", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"p4", "p3", "p2"}, ids)
}

func TestReplaceTopKDropsOldMembers(t *testing.T) {
	c, mr := testCache(t)
	ctx := context.Background()

	key := UserTopKKey("u1")
	require.NoError(t, c.ReplaceTopK(ctx, key, []ScoredID{
		{ID: "old1", Score: 9},
		{ID: "old2", Score: 8},
	}, TopKTTL))

	require.NoError(t, c.ReplaceTopK(ctx, key, []ScoredID{
		{ID: "new1", Score: 3},
		{ID: "new2", Score: 2},
		{ID: "new3", Score: 1},
	}, TopKTTL))

	entries, err := c.TopK(ctx, key, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "new1", entries[0].ID)
	assert.Equal(t, "new2", entries[1].ID)
	assert.Equal(t, "new3", entries[2].ID)

	assert.Equal(t, TopKTTL, mr.TTL(key))
}

func TestTopKLimitAndOrder(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()

	require.NoError(t, c.ReplaceGlobalTopK(ctx, []ScoredID{
		{ID: "p1", Score: 1},
		{ID: "p3", Score: 3},
		{ID: "p2", Score: 2},
	}))

	entries, err := c.GlobalTopK(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "p3", entries[0].ID)
	assert.Equal(t, "p2", entries[1].ID)
}

func TestProductMetaRoundTrip(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()

	in := map[string]database.ProductMeta{
		"p1": {Title: "Milk", MerchantID: "m1", CategoryID: "c1", Popularity: 4.5},
		"p2": {Title: "Bread", MerchantID: "m2", CategoryID: "c2", Popularity: 1.5},
	}
	require.NoError(t, c.SetProductMeta(ctx, in))

	out, err := c.ProductMeta(ctx, []string{"p1", "p2", "ghost"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in["p1"], out["p1"])
	assert.Equal(t, in["p2"], out["p2"])
}

func TestEventQueueFIFO(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()

	require.NoError(t, c.PushEvent(ctx, []byte(`{"n":1}`)))
	require.NoError(t, c.PushEvent(ctx, []byte(`{"n":2}`)))

	depth, err := c.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)

	first, err := c.PopEvent(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, `{"n":1}`, string(first))

	second, err := c.PopEvent(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, `{"n":2}`, string(second))
}
