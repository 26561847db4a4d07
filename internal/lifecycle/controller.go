// Package lifecycle coordinates one booking attempt end to end: ride
// creation, the no-driver countdown, the bid stream and the ride-status
// transitions, against the booking API and the realtime document store.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beekyynd/taxi/internal/bids"
	"github.com/beekyynd/taxi/internal/booking"
	"github.com/beekyynd/taxi/internal/countdown"
	"github.com/beekyynd/taxi/internal/docstore"
	"github.com/beekyynd/taxi/internal/session"
	"github.com/beekyynd/taxi/pkg/config"
	apperrors "github.com/beekyynd/taxi/pkg/errors"
	"github.com/beekyynd/taxi/pkg/logger"
	"github.com/beekyynd/taxi/pkg/notify"
	"github.com/beekyynd/taxi/pkg/storage"
)

// State is the booking attempt state.
type State int

const (
	StateIdle State = iota
	StateCreating
	StateAwaitingDriver
	StateAccepted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCreating:
		return "creating"
	case StateAwaitingDriver:
		return "awaiting_driver"
	case StateAccepted:
		return "accepted"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Ride-status document values.
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusCancelled = "cancelled"
	StatusScheduled = "scheduled"
)

// ErrBookingInProgress rejects a second booking while one is already
// searching for a driver.
var ErrBookingInProgress = errors.New("lifecycle: booking already in progress")

// BookingAPI is the slice of the booking client the controller needs.
type BookingAPI interface {
	CreateRideRequest(ctx context.Context, form *booking.RideRequestForm) (*booking.RideRequestResponse, error)
	UpdateRideRequest(ctx context.Context, rideRequestID, status string) error
}

// BidSubscriber opens the bid stream for a ride request.
type BidSubscriber interface {
	Subscribe(ctx context.Context, rideRequestID string, onUpdate func([]bids.Offer)) (func(), error)
}

// MapSurface receives pulse/route commands for the embedded map.
type MapSurface interface {
	Send(action string, data map[string]interface{}) error
}

// Deps wires the controller's collaborators.
type Deps struct {
	Config    *config.Config
	API       BookingAPI
	Docs      docstore.Store
	Bids      BidSubscriber
	Sessions  *session.Manager
	Notifier  notify.Notifier
	Navigator Navigator
	Surface   MapSurface
	Storage   storage.Store

	// OnTick and OnBids push countdown and bid updates to the shell.
	OnTick func(remaining time.Duration)
	OnBids func(offers []bids.Offer)
}

// Controller owns the ride-request id, the fare-selection outcome and the
// bid list for the lifetime of one booking attempt. Other components push
// events through its methods; nothing mutates its state directly.
type Controller struct {
	deps Deps

	waitAttempts int
	waitDelay    time.Duration

	mu            sync.Mutex
	state         State
	rideRequestID string
	attempt       uint64
	timer         *countdown.Timer
	stopBids      func()
	stopStatus    func()
	bidList       []bids.Offer
}

// NewController creates an idle controller.
func NewController(deps Deps) *Controller {
	return &Controller{
		deps:         deps,
		waitAttempts: 5,
		waitDelay:    time.Second,
		state:        StateIdle,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RideRequestID returns the id of the current booking attempt, if any.
func (c *Controller) RideRequestID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rideRequestID
}

// Bids returns the latest deduplicated bid list.
func (c *Controller) Bids() []bids.Offer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bids.Offer(nil), c.bidList...)
}

// Create posts the ride request and, on success, starts the no-driver
// countdown and opens the bid and status subscriptions. A booking attempted
// while another is still searching is rejected with an in-progress notice and
// never reaches the API.
func (c *Controller) Create(ctx context.Context, form *booking.RideRequestForm) error {
	// a token that is already expired locally cannot book; skip the round trip
	if expired, err := c.deps.Sessions.IsExpired(ctx, time.Now()); err == nil && expired {
		return c.handleCreateError(ctx, booking.ErrSessionExpired)
	}

	c.mu.Lock()
	if c.state == StateCreating || c.state == StateAwaitingDriver {
		c.mu.Unlock()
		c.deps.Notifier.Notify("", "A booking is already in progress.", notify.KindInfo)
		return ErrBookingInProgress
	}
	c.attempt++
	generation := c.attempt
	c.state = StateCreating
	c.bidList = nil
	c.mu.Unlock()

	// one correlation id per booking attempt
	ctx = logger.ContextWithCorrelationID(ctx, uuid.NewString())

	c.sendSurface("focusPickup", nil)

	resp, err := c.deps.API.CreateRideRequest(ctx, form)

	c.mu.Lock()
	if c.attempt != generation {
		// superseded: the user cancelled or left while the call was in flight
		c.mu.Unlock()
		logger.Debug("ignoring stale booking response")
		return nil
	}

	if err != nil {
		c.state = StateIdle
		c.mu.Unlock()
		return c.handleCreateError(ctx, err)
	}

	id := resp.RideRequestID()
	c.rideRequestID = id
	c.state = StateAwaitingDriver

	ride := c.deps.Config.Ride()
	timer := countdown.NewTimer(c.deps.Storage, ride.FindDriverTimeLimit, c.deps.OnTick, func() {
		c.handleTimerComplete(id)
	})
	c.timer = timer
	c.mu.Unlock()

	if err := timer.Start(ctx); err != nil {
		logger.Warn("failed to start no-driver countdown", zap.Error(err))
	}
	c.sendSurface("startPulsingAnimation", nil)

	c.openBidSubscription(ctx, id, generation)
	c.openStatusListener(ctx, id, generation)

	logger.WithContext(ctx).Info("ride request created",
		zap.String("ride_request_id", id),
		zap.Int("drivers_notified", len(resp.Drivers)),
	)
	return nil
}

func (c *Controller) handleCreateError(ctx context.Context, err error) error {
	if errors.Is(err, booking.ErrSessionExpired) {
		c.deps.Sessions.Expire(ctx)
		if navErr := c.deps.Navigator.Navigate(SignInRoute{}); navErr != nil {
			logger.Error("failed to navigate to sign-in", zap.Error(navErr))
		}
		return err
	}

	var apiErr *booking.APIError
	if errors.As(err, &apiErr) {
		c.deps.Notifier.Notify("", apiErr.Error(), notify.KindError)
		return err
	}

	apperrors.CaptureError(err, "lifecycle", "create")
	c.deps.Notifier.Notify("", "Could not book your ride. Please try again.", notify.KindError)
	return err
}

// Cancel stops the booking attempt: countdown and pulse stop, subscriptions
// close, the UI returns to the pre-booking sheet, and a cancellation mutation
// is sent fire-and-forget. Safe to call repeatedly and with no active attempt.
func (c *Controller) Cancel(ctx context.Context) {
	c.mu.Lock()
	id := c.rideRequestID
	c.rideRequestID = ""
	c.attempt++ // invalidates any in-flight booking response
	timer := c.timer
	stopBids := c.stopBids
	stopStatus := c.stopStatus
	c.timer = nil
	c.stopBids = nil
	c.stopStatus = nil
	// back to the pre-booking sheet, whatever happened before
	c.state = StateIdle
	c.mu.Unlock()

	if timer != nil {
		timer.Cancel(ctx)
	}
	if stopBids != nil {
		stopBids()
	}
	if stopStatus != nil {
		stopStatus()
	}

	c.sendSurface("stopPulsingAnimation", nil)
	c.sendSurface("drawRouteAndMarkers", nil)
	c.sendSurface("fitRoute", nil)

	if id == "" {
		return
	}

	// local-first: the mutation outcome never blocks the UI unwind
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.deps.API.UpdateRideRequest(sendCtx, id, StatusCancelled); err != nil {
			logger.Warn("cancellation mutation failed",
				zap.String("ride_request_id", id),
				zap.Error(err),
			)
		}
	}()
}

// Close tears down everything on screen unmount.
func (c *Controller) Close(ctx context.Context) {
	c.Cancel(ctx)
}

func (c *Controller) handleTimerComplete(rideRequestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c.mu.Lock()
	stale := c.rideRequestID != rideRequestID
	c.mu.Unlock()
	if stale {
		return
	}

	c.Cancel(ctx)
	c.deps.Notifier.Notify("", "No drivers were found. Your ride has been automatically cancelled.", notify.KindInfo)
}

func (c *Controller) openBidSubscription(ctx context.Context, id string, generation uint64) {
	stop, err := c.deps.Bids.Subscribe(ctx, id, func(offers []bids.Offer) {
		c.mu.Lock()
		if c.attempt != generation {
			c.mu.Unlock()
			return
		}
		c.bidList = offers
		c.mu.Unlock()

		if c.deps.OnBids != nil {
			c.deps.OnBids(offers)
		}
	})
	if err != nil {
		logger.Error("failed to open bid subscription", zap.String("ride_request_id", id), zap.Error(err))
		apperrors.CaptureError(err, "lifecycle", "bid_subscribe")
		return
	}

	c.mu.Lock()
	if c.attempt != generation {
		c.mu.Unlock()
		stop()
		return
	}
	c.stopBids = stop
	c.mu.Unlock()
}

// openStatusListener watches the single ride-status document for the created
// request. Establishment failure is logged and reported, not retried: the
// countdown still guarantees the attempt terminates.
func (c *Controller) openStatusListener(ctx context.Context, id string, generation uint64) {
	path := fmt.Sprintf("ride_requests/%s/instantRide/%s", id, id)

	events, stop, err := c.deps.Docs.WatchDocument(ctx, path)
	if err != nil {
		logger.Error("failed to open status listener", zap.String("ride_request_id", id), zap.Error(err))
		apperrors.CaptureError(err, "lifecycle", "status_subscribe")
		return
	}

	c.mu.Lock()
	if c.attempt != generation {
		c.mu.Unlock()
		stop()
		return
	}
	c.stopStatus = stop
	c.mu.Unlock()

	go func() {
		for event := range events {
			if event.Err != nil {
				logger.Error("status listener error", zap.String("ride_request_id", id), zap.Error(event.Err))
				apperrors.CaptureError(event.Err, "lifecycle", "status_watch")
				return
			}
			if done := c.handleStatusEvent(ctx, id, generation, event.Doc); done {
				return
			}
		}
	}()
}

// handleStatusEvent reduces one status-document update. Returns true when the
// listener should stop.
func (c *Controller) handleStatusEvent(ctx context.Context, id string, generation uint64, doc docstore.Document) bool {
	c.mu.Lock()
	if c.attempt != generation {
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()

	if !doc.Exists {
		logger.Warn("status document missing", zap.String("ride_request_id", id))
		return false
	}

	status, _ := doc.Data["status"].(string)
	rideID := asString(doc.Data["ride_id"])
	if status == "" || rideID == "" {
		logger.Warn("invalid status document", zap.String("ride_request_id", id))
		return false
	}

	switch status {
	case StatusCancelled:
		c.deps.Notifier.Notify("", "Ride Cancelled", notify.KindError)
		c.teardownAttempt(ctx, generation, StateCancelled)
		c.deps.Navigator.Back()
		return true

	case StatusAccepted:
		rideData, err := c.waitForRideDoc(ctx, rideID)
		if err != nil {
			logger.Error("failed to resolve accepted ride",
				zap.String("ride_id", rideID),
				zap.Error(err),
			)
			apperrors.CaptureError(err, "lifecycle", "resolve_ride")
			return true
		}

		c.teardownAttempt(ctx, generation, StateAccepted)

		if rideCategory(rideData) == "schedule" {
			if err := c.deps.Navigator.Navigate(TabRootRoute{}); err != nil {
				logger.Error("failed to navigate to tab root", zap.Error(err))
			}
			c.deps.Notifier.Notify("", "Your ride has been scheduled.", notify.KindSuccess)
			return true
		}

		cloned, err := deepClone(rideData)
		if err != nil {
			logger.Error("failed to clone ride payload", zap.Error(err))
			return true
		}
		if err := c.deps.Navigator.Navigate(ActiveRideRoute{Ride: cloned}); err != nil {
			logger.Error("failed to navigate to active ride", zap.Error(err))
		}
		return true
	}

	return false
}

// teardownAttempt stops the countdown, pulse and both subscriptions for a
// finished attempt without issuing a cancellation mutation.
func (c *Controller) teardownAttempt(ctx context.Context, generation uint64, final State) {
	c.mu.Lock()
	if c.attempt != generation {
		c.mu.Unlock()
		return
	}
	timer := c.timer
	stopBids := c.stopBids
	stopStatus := c.stopStatus
	c.timer = nil
	c.stopBids = nil
	c.stopStatus = nil
	c.state = final
	c.mu.Unlock()

	if timer != nil {
		timer.Cancel(ctx)
	}
	if stopBids != nil {
		stopBids()
	}
	if stopStatus != nil {
		stopStatus()
	}
	c.sendSurface("stopPulsingAnimation", nil)
	c.sendSurface("drawRouteAndMarkers", nil)
}

// waitForRideDoc fetches the linked ride document with a fixed bounded retry;
// the accepted status can land before the ride document materializes.
func (c *Controller) waitForRideDoc(ctx context.Context, rideID string) (map[string]interface{}, error) {
	for i := 0; i < c.waitAttempts; i++ {
		doc, err := c.deps.Docs.GetDocument(ctx, "rides/"+rideID)
		if err != nil {
			logger.Warn("ride document fetch failed", zap.String("ride_id", rideID), zap.Error(err))
		} else if doc.Exists {
			return doc.Data, nil
		}

		select {
		case <-time.After(c.waitDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("ride doc %s not found after %d retries", rideID, c.waitAttempts)
}

// CheckCountdown re-checks the countdown immediately; the shell calls this
// from its foreground-resume hook.
func (c *Controller) CheckCountdown(ctx context.Context) {
	c.mu.Lock()
	timer := c.timer
	c.mu.Unlock()

	if timer != nil {
		timer.CheckNow(ctx)
	}
}

func (c *Controller) sendSurface(action string, data map[string]interface{}) {
	if c.deps.Surface == nil {
		return
	}
	if err := c.deps.Surface.Send(action, data); err != nil {
		logger.Debug("map surface send failed", zap.String("action", action), zap.Error(err))
	}
}

// deepClone serializes and re-decodes the payload, stripping anything that is
// not plain data before it crosses the navigation boundary.
func deepClone(data map[string]interface{}) (map[string]interface{}, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var cloned map[string]interface{}
	if err := json.Unmarshal(encoded, &cloned); err != nil {
		return nil, err
	}
	return cloned, nil
}

func rideCategory(rideData map[string]interface{}) string {
	category, ok := rideData["service_category"].(map[string]interface{})
	if !ok {
		return ""
	}
	categoryType, _ := category["service_category_type"].(string)
	return categoryType
}

func asString(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return fmt.Sprintf("%.0f", value)
	case int64:
		return fmt.Sprintf("%d", value)
	default:
		return ""
	}
}
