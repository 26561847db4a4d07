// Package bids translates the realtime bid stream for a ride request into an
// ordered, deduplicated view for the UI, with a haptic pulse on each distinct
// change.
package bids

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/beekyynd/taxi/internal/docstore"
	apperrors "github.com/beekyynd/taxi/pkg/errors"
	"github.com/beekyynd/taxi/pkg/logger"
	"github.com/beekyynd/taxi/pkg/notify"
)

// Offer is one driver bid. Bids are append-only per ride request; the client
// holds the most-recent ordered set keyed by id.
type Offer struct {
	ID        string    `json:"id"`
	DriverID  string    `json:"driver_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// Subscription opens bid listeners. One Subscription is shared; each
// Subscribe call owns its own watch.
type Subscription struct {
	store   docstore.Store
	haptics notify.Haptics
}

// NewSubscription creates a bid subscription factory.
func NewSubscription(store docstore.Store, haptics notify.Haptics) *Subscription {
	return &Subscription{store: store, haptics: haptics}
}

// Subscribe watches the bid collection for a ride request, newest first, and
// invokes onUpdate once per distinct snapshot. A non-empty distinct snapshot
// triggers a single long vibration before the callback. The returned function
// tears the watch down; after it returns no further callbacks fire from this
// subscription. Listener errors are logged and close the watch; the caller
// may re-subscribe.
func (s *Subscription) Subscribe(ctx context.Context, rideRequestID string, onUpdate func([]Offer)) (func(), error) {
	path := fmt.Sprintf("ride_requests/%s/bids", rideRequestID)

	events, stop, err := s.store.WatchCollection(ctx, path, "created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to open bid listener: %w", err)
	}

	go func() {
		var previous string
		for event := range events {
			if event.Err != nil {
				logger.Error("bid listener error",
					zap.String("ride_request_id", rideRequestID),
					zap.Error(event.Err),
				)
				apperrors.CaptureError(event.Err, "bids", "watch")
				return
			}

			offers := decodeOffers(event.Docs)
			serialized, err := json.Marshal(offers)
			if err != nil {
				logger.Error("failed to serialize bids", zap.Error(err))
				continue
			}

			// identical content: no callback, no haptic
			if string(serialized) == previous {
				continue
			}
			previous = string(serialized)

			if len(offers) > 0 {
				s.haptics.Vibrate(notify.LongPulse)
			}
			onUpdate(offers)
		}
	}()

	return stop, nil
}

func decodeOffers(docs []docstore.Document) []Offer {
	offers := make([]Offer, 0, len(docs))
	for _, doc := range docs {
		offers = append(offers, Offer{
			ID:        doc.ID,
			DriverID:  asString(doc.Data["driver_id"]),
			Amount:    asFloat(doc.Data["amount"]),
			CreatedAt: asTime(doc.Data["created_at"]),
		})
	}
	return offers
}

func asString(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(value, 10)
	default:
		return ""
	}
}

func asFloat(v interface{}) float64 {
	switch value := v.(type) {
	case float64:
		return value
	case int64:
		return float64(value)
	case string:
		parsed, _ := strconv.ParseFloat(value, 64)
		return parsed
	default:
		return 0
	}
}

func asTime(v interface{}) time.Time {
	switch value := v.(type) {
	case time.Time:
		return value
	case string:
		parsed, _ := time.Parse(time.RFC3339, value)
		return parsed
	case float64:
		// epoch milliseconds
		return time.UnixMilli(int64(value))
	case int64:
		return time.UnixMilli(value)
	default:
		return time.Time{}
	}
}
