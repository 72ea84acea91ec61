package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosarica/feed-service/internal/bandit"
	"github.com/kosarica/feed-service/internal/database"
)

type fakeTrails struct {
	calls    int
	failures int // fail this many leading calls
	sessions []string
}

func (f *fakeTrails) PushSessionTrail(ctx context.Context, sessionID, productID string) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	f.sessions = append(f.sessions, sessionID)
	return nil
}

type fakeConsumerStore struct {
	metas        map[string]database.ProductMeta
	metaErr      error
	insertErr    error
	interactions []database.Interaction
}

func (f *fakeConsumerStore) ProductMetaByIDs(ctx context.Context, ids []string) (map[string]database.ProductMeta, error) {
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	return f.metas, nil
}

func (f *fakeConsumerStore) InsertInteraction(ctx context.Context, in database.Interaction) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.interactions = append(f.interactions, in)
	return nil
}

type recordedOutcome struct {
	kind, id string
	success  bool
}

type fakeRecorder struct {
	outcomes []recordedOutcome
}

func (f *fakeRecorder) Record(ctx context.Context, kind, id string, success bool) {
	f.outcomes = append(f.outcomes, recordedOutcome{kind: kind, id: id, success: success})
}

func newTestConsumer(store *fakeConsumerStore, trails *fakeTrails, rec *fakeRecorder) *Consumer {
	return New(nil, trails, store, rec)
}

func TestProcessMalformedPayloadDropped(t *testing.T) {
	store := &fakeConsumerStore{}
	c := newTestConsumer(store, &fakeTrails{}, &fakeRecorder{})

	c.Process(context.Background(), []byte("{not json"))
	assert.Empty(t, store.interactions)
}

func TestProcessUnknownTypeDropped(t *testing.T) {
	store := &fakeConsumerStore{}
	c := newTestConsumer(store, &fakeTrails{}, &fakeRecorder{})

	c.Process(context.Background(), []byte(`{"sessionId":"s1","productId":"p1","type":"HOVER"}`))
	assert.Empty(t, store.interactions)
}

func TestProcessMissingProductDropped(t *testing.T) {
	store := &fakeConsumerStore{}
	c := newTestConsumer(store, &fakeTrails{}, &fakeRecorder{})

	c.Process(context.Background(), []byte(`{"sessionId":"s1","type":"VIEW"}`))
	assert.Empty(t, store.interactions)
}

func TestProcessClickRecordsSuccess(t *testing.T) {
	store := &fakeConsumerStore{
		metas: map[string]database.ProductMeta{
			"p1": {MerchantID: "m1", CategoryID: "c1"},
		},
	}
	trails := &fakeTrails{}
	rec := &fakeRecorder{}
	c := newTestConsumer(store, trails, rec)

	c.Process(context.Background(), []byte(`{"userId":"u1","sessionId":"s1","productId":"p1","type":"CLICK"}`))

	assert.Equal(t, []string{"s1"}, trails.sessions)

	require.Len(t, rec.outcomes, 2)
	assert.Equal(t, recordedOutcome{kind: bandit.KindMerchant, id: "m1", success: true}, rec.outcomes[0])
	assert.Equal(t, recordedOutcome{kind: bandit.KindCategory, id: "c1", success: true}, rec.outcomes[1])

	require.Len(t, store.interactions, 1)
	in := store.interactions[0]
	assert.Equal(t, database.InteractionClick, in.Type)
	assert.Equal(t, "p1", in.ProductID)
	require.NotNil(t, in.UserID)
	assert.Equal(t, "u1", *in.UserID)
	assert.Equal(t, 1.0, in.Value)
	assert.NotEmpty(t, in.ID)
}

func TestProcessViewRecordsFailure(t *testing.T) {
	store := &fakeConsumerStore{
		metas: map[string]database.ProductMeta{
			"p1": {MerchantID: "m1", CategoryID: "c1"},
		},
	}
	rec := &fakeRecorder{}
	c := newTestConsumer(store, &fakeTrails{}, rec)

	c.Process(context.Background(), []byte(`{"sessionId":"s1","productId":"p1","type":"VIEW"}`))

	require.Len(t, rec.outcomes, 2)
	assert.False(t, rec.outcomes[0].success)
	assert.False(t, rec.outcomes[1].success)
}

func TestProcessCartSkipsBandit(t *testing.T) {
	store := &fakeConsumerStore{
		metas: map[string]database.ProductMeta{
			"p1": {MerchantID: "m1", CategoryID: "c1"},
		},
	}
	rec := &fakeRecorder{}
	c := newTestConsumer(store, &fakeTrails{}, rec)

	c.Process(context.Background(), []byte(`{"sessionId":"s1","productId":"p1","type":"CART"}`))

	assert.Empty(t, rec.outcomes)
	assert.Len(t, store.interactions, 1)
}

func TestProcessAnonymousEventHasNilUser(t *testing.T) {
	store := &fakeConsumerStore{metas: map[string]database.ProductMeta{}}
	c := newTestConsumer(store, &fakeTrails{}, &fakeRecorder{})

	c.Process(context.Background(), []byte(`{"sessionId":"s1","productId":"p1","type":"CART"}`))

	require.Len(t, store.interactions, 1)
	assert.Nil(t, store.interactions[0].UserID)
}

func TestProcessTrailRetriesOnce(t *testing.T) {
	store := &fakeConsumerStore{metas: map[string]database.ProductMeta{}}
	trails := &fakeTrails{failures: 1}
	c := newTestConsumer(store, trails, &fakeRecorder{})

	c.Process(context.Background(), []byte(`{"sessionId":"s1","productId":"p1","type":"CART"}`))

	assert.Equal(t, 2, trails.calls)
	assert.Equal(t, []string{"s1"}, trails.sessions)
}

func TestProcessStepsAreIndependent(t *testing.T) {
	// Trail and meta lookup both fail; the interaction must still land.
	store := &fakeConsumerStore{metaErr: errors.New("connection refused")}
	trails := &fakeTrails{failures: 2}
	rec := &fakeRecorder{}
	c := newTestConsumer(store, trails, rec)

	c.Process(context.Background(), []byte(`{"sessionId":"s1","productId":"p1","type":"CLICK"}`))

	assert.Empty(t, rec.outcomes)
	assert.Len(t, store.interactions, 1)
}

func TestProcessInsertFailureDoesNotPanic(t *testing.T) {
	store := &fakeConsumerStore{insertErr: errors.New("deadlock detected")}
	c := newTestConsumer(store, &fakeTrails{}, &fakeRecorder{})

	assert.NotPanics(t, func() {
		c.Process(context.Background(), []byte(`{"sessionId":"s1","productId":"p1","type":"CART"}`))
	})
}
