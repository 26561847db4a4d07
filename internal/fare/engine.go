// Package fare computes the displayed price per vehicle option, applying
// coupon discounts and driver-bidding bounds.
package fare

import (
	"errors"
	"math"
	"sync"
)

// ErrNotOfferable marks an option with a non-positive base fare. Such options
// must be excluded from the selectable list entirely.
var ErrNotOfferable = errors.New("fare: option is not offerable")

// Engine computes fare quotes. Non-bidding quotes are memoized per option id
// since the base fare and coupon are fixed for one pickup/drop pair.
type Engine struct {
	increaseAmount   float64
	maxBidPercentage float64

	mu     sync.Mutex
	quotes map[string]FareQuote
}

// NewEngine creates a fare engine with the platform's bidding step and bound.
func NewEngine(increaseAmount, maxBidPercentage float64) *Engine {
	return &Engine{
		increaseAmount:   increaseAmount,
		maxBidPercentage: maxBidPercentage,
		quotes:           make(map[string]FareQuote),
	}
}

// round2 rounds to 2 decimals; discounts are rounded before subtraction.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComputeQuote derives the displayed fare for an option. When bidding is
// enabled the offered fare wins, clamped to the bidding bounds; otherwise the
// coupon-adjusted base fare is returned.
func (e *Engine) ComputeQuote(option VehicleOption, coupon *Coupon, biddingEnabled bool, offeredFare float64) (FareQuote, error) {
	if option.BaseTotalFare <= 0 {
		return FareQuote{}, ErrNotOfferable
	}

	if biddingEnabled {
		min, max := e.Bounds(option)
		final := offeredFare
		if final < min {
			final = min
		}
		if final > max {
			final = max
		}
		return FareQuote{
			VehicleID:    option.ID,
			OriginalFare: round2(option.BaseTotalFare),
			FinalFare:    round2(final),
		}, nil
	}

	e.mu.Lock()
	cached, ok := e.quotes[option.ID]
	e.mu.Unlock()
	if ok {
		return cached, nil
	}

	quote := computeDiscounted(option, coupon)

	e.mu.Lock()
	e.quotes[option.ID] = quote
	e.mu.Unlock()

	return quote, nil
}

// Invalidate drops memoized quotes, e.g. after a coupon change.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.quotes = make(map[string]FareQuote)
	e.mu.Unlock()
}

// Bounds returns the bidding fare range for an option: the base fare up to
// the base fare plus the configured percentage.
func (e *Engine) Bounds(option VehicleOption) (min, max float64) {
	min = option.BaseTotalFare
	max = min + min*e.maxBidPercentage/100
	return min, max
}

// Increase steps the offered fare up by the configured amount, snapping to
// the maximum without overshooting.
func (e *Engine) Increase(option VehicleOption, offeredFare float64) float64 {
	_, max := e.Bounds(option)
	next := offeredFare + e.increaseAmount
	if next >= max {
		return round2(max)
	}
	return round2(next)
}

// Decrease steps the offered fare down, snapping to the minimum.
func (e *Engine) Decrease(option VehicleOption, offeredFare float64) float64 {
	min, _ := e.Bounds(option)
	next := offeredFare - e.increaseAmount
	if next <= min {
		return round2(min)
	}
	return round2(next)
}

// SelectableOptions filters out options that are not offerable.
func SelectableOptions(options []VehicleOption) []VehicleOption {
	selectable := make([]VehicleOption, 0, len(options))
	for _, option := range options {
		if option.BaseTotalFare > 0 {
			selectable = append(selectable, option)
		}
	}
	return selectable
}

func computeDiscounted(option VehicleOption, coupon *Coupon) FareQuote {
	original := round2(option.BaseTotalFare)
	quote := FareQuote{
		VehicleID:    option.ID,
		OriginalFare: original,
		FinalFare:    original,
	}

	if !coupon.AppliesTo(option.ID) {
		return quote
	}

	var saving float64
	switch coupon.Type {
	case CouponPercentage:
		saving = original * coupon.Amount / 100
	default:
		saving = coupon.Amount
	}

	saving = round2(saving)
	quote.DiscountAmount = saving
	quote.FinalFare = math.Max(0, round2(original-saving))
	return quote
}
