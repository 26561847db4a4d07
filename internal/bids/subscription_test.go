package bids

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beekyynd/taxi/internal/docstore"
)

type recordingHaptics struct {
	mu     sync.Mutex
	pulses []time.Duration
}

func (h *recordingHaptics) Vibrate(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pulses = append(h.pulses, d)
}

func (h *recordingHaptics) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pulses)
}

func bidDoc(id, driverID string, amount float64, createdAt time.Time) docstore.Document {
	return docstore.Document{
		ID:     id,
		Exists: true,
		Data: map[string]interface{}{
			"driver_id":  driverID,
			"amount":     amount,
			"created_at": createdAt,
		},
	}
}

func TestSubscribeDeliversDecodedOffers(t *testing.T) {
	store := docstore.NewFakeStore()
	haptics := &recordingHaptics{}
	sub := NewSubscription(store, haptics)

	updates := make(chan []Offer, 4)
	stop, err := sub.Subscribe(context.Background(), "42", func(offers []Offer) {
		updates <- offers
	})
	require.NoError(t, err)
	defer stop()

	created := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	store.PushCollection("ride_requests/42/bids", docstore.CollectionEvent{
		Docs: []docstore.Document{bidDoc("b2", "d7", 120, created), bidDoc("b1", "d3", 110, created.Add(-time.Minute))},
	})

	select {
	case offers := <-updates:
		require.Len(t, offers, 2)
		assert.Equal(t, "b2", offers[0].ID)
		assert.Equal(t, "d7", offers[0].DriverID)
		assert.Equal(t, 120.0, offers[0].Amount)
		assert.Equal(t, created, offers[0].CreatedAt)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}

	assert.Equal(t, 1, haptics.count())
}

func TestSubscribeDeduplicatesIdenticalSnapshots(t *testing.T) {
	store := docstore.NewFakeStore()
	haptics := &recordingHaptics{}
	sub := NewSubscription(store, haptics)

	updates := make(chan []Offer, 4)
	stop, err := sub.Subscribe(context.Background(), "42", func(offers []Offer) {
		updates <- offers
	})
	require.NoError(t, err)
	defer stop()

	created := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	snapshot := docstore.CollectionEvent{Docs: []docstore.Document{bidDoc("b1", "d3", 110, created)}}
	store.PushCollection("ride_requests/42/bids", snapshot)
	store.PushCollection("ride_requests/42/bids", snapshot)

	<-updates
	select {
	case <-updates:
		t.Fatal("identical snapshot must not be re-delivered")
	case <-time.After(100 * time.Millisecond):
	}

	assert.Equal(t, 1, haptics.count())
}

func TestSubscribeEmptySnapshotNoHaptic(t *testing.T) {
	store := docstore.NewFakeStore()
	haptics := &recordingHaptics{}
	sub := NewSubscription(store, haptics)

	updates := make(chan []Offer, 4)
	stop, err := sub.Subscribe(context.Background(), "42", func(offers []Offer) {
		updates <- offers
	})
	require.NoError(t, err)
	defer stop()

	store.PushCollection("ride_requests/42/bids", docstore.CollectionEvent{Docs: nil})

	select {
	case offers := <-updates:
		assert.Empty(t, offers)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
	assert.Equal(t, 0, haptics.count())
}

func TestUnsubscribeStopsCallbacks(t *testing.T) {
	store := docstore.NewFakeStore()
	sub := NewSubscription(store, &recordingHaptics{})

	updates := make(chan []Offer, 4)
	stop, err := sub.Subscribe(context.Background(), "42", func(offers []Offer) {
		updates <- offers
	})
	require.NoError(t, err)

	stop()
	assert.Eventually(t, func() bool {
		return store.CollectionWatchCount("ride_requests/42/bids") == 0
	}, time.Second, 10*time.Millisecond)

	// resubscribing after teardown works
	stop2, err := sub.Subscribe(context.Background(), "42", func(offers []Offer) {
		updates <- offers
	})
	require.NoError(t, err)
	defer stop2()
	assert.Equal(t, 1, store.CollectionWatchCount("ride_requests/42/bids"))
}

func TestListenerErrorClosesWatch(t *testing.T) {
	store := docstore.NewFakeStore()
	sub := NewSubscription(store, &recordingHaptics{})

	called := make(chan struct{}, 1)
	stop, err := sub.Subscribe(context.Background(), "42", func([]Offer) {
		called <- struct{}{}
	})
	require.NoError(t, err)
	defer stop()

	store.PushCollection("ride_requests/42/bids", docstore.CollectionEvent{Err: assert.AnError})

	select {
	case <-called:
		t.Fatal("error events must not invoke onUpdate")
	case <-time.After(100 * time.Millisecond):
	}
}
