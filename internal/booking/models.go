package booking

import (
	"encoding/json"
	"fmt"
)

// LatLng is one route coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NewRider is the optional "book for someone else" contact.
type NewRider struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone" validate:"required"`
}

// CargoImage is the optional parcel photo attached to delivery bookings.
type CargoImage struct {
	FileName    string
	ContentType string
	Data        []byte
}

// RideRequestForm is the booking payload. Validated client-side before any
// network call; a validation failure never reaches the wire.
type RideRequestForm struct {
	LocationCoordinates []LatLng `validate:"required,min=2"`
	Locations           []string `validate:"required,min=2"`
	RideFare            string   `validate:"required"`
	ServiceID           string   `validate:"required"`
	ServiceCategoryID   string   `validate:"required"`
	VehicleTypeID       string   `validate:"required"`
	Distance            string
	DistanceUnit        string
	PaymentMethod       string
	WalletBalance       string
	Coupon              string
	Description         string
	Weight              string
	ReceiverName        string
	ReceiverPhone       string
	ReceiverCountryCode string
	CurrencyCode        string
	NewRider            *NewRider `validate:"omitempty"`
	ScheduleTime        string
	CargoImage          *CargoImage
}

// RideRequestResponse is the success body of POST /api/rideRequest.
type RideRequestResponse struct {
	ID      json.Number   `json:"id"`
	Drivers []json.Number `json:"drivers"`
}

// RideRequestID returns the server-assigned id as a string.
func (r *RideRequestResponse) RideRequestID() string {
	return r.ID.String()
}

// CouponVerifyRequest is the payload of the coupon verification call.
type CouponVerifyRequest struct {
	Coupon            string   `json:"coupon" validate:"required"`
	ServiceID         string   `json:"service_id" validate:"required"`
	VehicleTypeID     string   `json:"vehicle_type_id"`
	Locations         []string `json:"locations"`
	ServiceCategoryID string   `json:"service_category_id"`
	Weight            string   `json:"weight,omitempty"`
}

// couponVerifyResponse is the raw verify body; normalized into fare.Coupon
// before leaving this package.
type couponVerifyResponse struct {
	Success             bool          `json:"success"`
	Message             string        `json:"message"`
	CouponType          string        `json:"coupon_type"`
	Amount              json.Number   `json:"amount"`
	TotalCouponDiscount json.Number   `json:"total_coupon_discount"`
	MinSpend            json.Number   `json:"min_spend"`
	IsApplyAll          int           `json:"is_apply_all"`
	ApplicableVehicles  []json.Number `json:"applicable_vehicles"`
}

// APIError carries a server-supplied failure message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("booking API returned status %d", e.StatusCode)
}
