package main

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/beekyynd/taxi/internal/bids"
	"github.com/beekyynd/taxi/internal/drivers"
	"github.com/beekyynd/taxi/internal/geocode"
	"github.com/beekyynd/taxi/internal/lifecycle"
	"github.com/beekyynd/taxi/internal/mapbridge"
	"github.com/beekyynd/taxi/pkg/config"
	"github.com/beekyynd/taxi/pkg/logger"
)

// ---- Navigator (headless shell logs route transitions) ----

type logNavigator struct{}

func (n *logNavigator) Navigate(route lifecycle.Route) error {
	if err := route.Validate(); err != nil {
		return err
	}
	logger.Info("navigate", zap.String("route", lifecycle.RouteName(route)))
	return nil
}

func (n *logNavigator) Back() {
	logger.Info("navigate back")
}

// ---- Countdown and bid sinks ----

func logCountdown(remaining time.Duration) {
	logger.Debug("searching for driver", zap.Duration("remaining", remaining))
}

func logBids(offers []bids.Offer) {
	logger.Info("bids updated", zap.Int("count", len(offers)))
}

// ---- Surface router ----

// surfaceRouter reacts to map surface events: pan events reverse geocode the
// new centre and rescan for nearby drivers (throttled so a continuous pan
// does not fan out into a request per frame); address searches forward
// geocode the query and recentre the map on the hit.
type surfaceRouter struct {
	ctx      context.Context
	cfg      *config.Config
	geocoder *geocode.Geocoder
	finder   *drivers.Finder
	bridge   *mapbridge.Bridge

	mu      sync.Mutex
	lastRun time.Time
}

const panThrottle = 2 * time.Second

func newSurfaceRouter(ctx context.Context, cfg *config.Config, geocoder *geocode.Geocoder, finder *drivers.Finder, bridge *mapbridge.Bridge) *surfaceRouter {
	return &surfaceRouter{ctx: ctx, cfg: cfg, geocoder: geocoder, finder: finder, bridge: bridge}
}

func (r *surfaceRouter) route(msg mapbridge.Inbound) {
	switch msg.Type {
	case mapbridge.TypeMapMove:
		r.mapMoved(msg.Lat, msg.Lng)
	case mapbridge.TypeSearchAddress:
		go r.searchAddress(msg.Query)
	default:
		logger.Debug("surface event", zap.String("type", msg.Type))
	}
}

func (r *surfaceRouter) mapMoved(lat, lng float64) {
	r.mu.Lock()
	if time.Since(r.lastRun) < panThrottle {
		r.mu.Unlock()
		return
	}
	r.lastRun = time.Now()
	r.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
		defer cancel()

		address := r.geocoder.Reverse(ctx, lat, lng)
		city, err := r.geocoder.City(ctx, lat, lng)
		if err != nil {
			logger.Debug("city lookup failed", zap.Error(err))
		}
		logger.Info("map centre moved",
			zap.Float64("lat", lat),
			zap.Float64("lng", lng),
			zap.String("address", address),
			zap.String("city", city),
		)

		found, err := r.finder.Nearby(ctx, lat, lng, "")
		if err != nil {
			logger.Warn("nearby driver scan failed", zap.Error(err))
			return
		}
		logger.Debug("drivers near centre", zap.Int("count", len(found)))
	}()
}

func (r *surfaceRouter) searchAddress(query string) {
	if query == "" {
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
	defer cancel()

	point, err := r.geocoder.Forward(ctx, query)
	if err != nil {
		logger.Warn("address search failed", zap.String("query", query), zap.Error(err))
		return
	}

	if err := r.bridge.Send("focusPickup", map[string]interface{}{
		"pickup": map[string]interface{}{"lat": point.Lat, "lng": point.Lng},
	}); err != nil {
		logger.Debug("failed to recentre map", zap.Error(err))
	}
}
