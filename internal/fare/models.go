package fare

// VehicleOption is one selectable vehicle class for the current pickup/drop
// pair. Immutable once fetched.
type VehicleOption struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	BaseTotalFare    float64 `json:"base_total_fare"`
	MinPerUnitCharge float64 `json:"min_per_unit_charge"`
	CurrencySymbol   string  `json:"currency_symbol"`
}

// CouponType distinguishes percentage and flat discounts.
type CouponType string

const (
	CouponPercentage CouponType = "percentage"
	CouponFlat       CouponType = "flat"
)

// Coupon is the canonical verified-coupon shape. The booking client
// normalizes the verify response into this; nothing else carries coupon state.
type Coupon struct {
	Code                 string     `json:"code"`
	Type                 CouponType `json:"coupon_type"`
	Amount               float64    `json:"amount"`
	MinSpend             float64    `json:"min_spend"`
	ApplyAll             bool       `json:"is_apply_all"`
	ApplicableVehicleIDs []string   `json:"applicable_vehicles"`
}

// AppliesTo reports whether the coupon is eligible for the given option.
func (c *Coupon) AppliesTo(optionID string) bool {
	if c == nil {
		return false
	}
	if c.ApplyAll {
		return true
	}
	for _, id := range c.ApplicableVehicleIDs {
		if id == optionID {
			return true
		}
	}
	return false
}

// FareQuote is the derived price for one vehicle option. Never stored;
// recomputed whenever selection, coupon or bidding value changes.
type FareQuote struct {
	VehicleID      string  `json:"vehicle_id"`
	OriginalFare   float64 `json:"original_fare"`
	DiscountAmount float64 `json:"discount_amount"`
	FinalFare      float64 `json:"final_fare"`
}
