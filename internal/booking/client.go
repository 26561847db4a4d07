// Package booking is the REST client for the ride-request API: creation,
// status mutation and coupon verification.
package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/beekyynd/taxi/internal/fare"
	"github.com/beekyynd/taxi/internal/session"
	"github.com/beekyynd/taxi/pkg/logger"
)

// ErrSessionExpired signals an HTTP 403: the caller must clear the session
// and return to sign-in rather than show a generic error.
var ErrSessionExpired = errors.New("booking: session expired")

// Client talks to the booking API. Requests run inside a circuit breaker so a
// flapping backend fails fast instead of piling up timeouts.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	sessions   *session.Manager
	validate   *validator.Validate
}

// NewClient creates a booking API client.
func NewClient(baseURL string, timeout time.Duration, sessions *session.Manager) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "booking-api",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("booking API circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		sessions:   sessions,
		validate:   validator.New(),
	}
}

// CreateRideRequest posts the booking as a multipart form. 403 maps to
// ErrSessionExpired; other non-2xx statuses map to APIError with the
// server-supplied message. Booking is never retried automatically.
func (c *Client) CreateRideRequest(ctx context.Context, form *RideRequestForm) (*RideRequestResponse, error) {
	if err := c.validate.Struct(form); err != nil {
		return nil, fmt.Errorf("invalid ride request form: %w", err)
	}

	body, contentType, err := encodeRideRequestForm(form)
	if err != nil {
		return nil, err
	}

	status, respBody, err := c.do(ctx, http.MethodPost, "/api/rideRequest", contentType, body)
	if err != nil {
		return nil, err
	}

	if status == http.StatusForbidden {
		return nil, ErrSessionExpired
	}
	if status < 200 || status > 299 {
		return nil, &APIError{StatusCode: status, Message: decodeMessage(respBody)}
	}

	var resp RideRequestResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode ride request response: %w", err)
	}
	return &resp, nil
}

// UpdateRideRequest sends the generic status mutation, used for both
// cancellation and completion flows.
func (c *Client) UpdateRideRequest(ctx context.Context, rideRequestID, status string) error {
	payload, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return err
	}

	code, respBody, err := c.do(ctx, http.MethodPost, "/api/updateRideRequest/"+rideRequestID, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}

	if code == http.StatusForbidden {
		return ErrSessionExpired
	}
	if code < 200 || code > 299 {
		return &APIError{StatusCode: code, Message: decodeMessage(respBody)}
	}
	return nil
}

// VerifyCoupon checks a coupon code against the platform and normalizes the
// response into the canonical coupon shape. A business rejection comes back
// as an APIError carrying the server message.
func (c *Client) VerifyCoupon(ctx context.Context, req *CouponVerifyRequest) (*fare.Coupon, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid coupon verify request: %w", err)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	code, respBody, err := c.do(ctx, http.MethodPost, "/api/verifyCoupon", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	if code == http.StatusForbidden {
		return nil, ErrSessionExpired
	}

	var verify couponVerifyResponse
	if err := json.Unmarshal(respBody, &verify); err != nil {
		return nil, fmt.Errorf("failed to decode coupon response: %w", err)
	}
	if code < 200 || code > 299 || !verify.Success {
		return nil, &APIError{StatusCode: code, Message: verify.Message}
	}

	coupon := &fare.Coupon{
		Code:     req.Coupon,
		ApplyAll: verify.IsApplyAll == 1,
	}
	coupon.MinSpend, _ = verify.MinSpend.Float64()
	for _, id := range verify.ApplicableVehicles {
		coupon.ApplicableVehicleIDs = append(coupon.ApplicableVehicleIDs, id.String())
	}
	if verify.CouponType == string(fare.CouponPercentage) {
		coupon.Type = fare.CouponPercentage
		coupon.Amount, _ = verify.Amount.Float64()
	} else {
		coupon.Type = fare.CouponFlat
		coupon.Amount, _ = verify.TotalCouponDiscount.Float64()
	}

	return coupon, nil
}

// do runs one authenticated request through the circuit breaker.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (int, []byte, error) {
	token, err := c.sessions.Token(ctx)
	if err != nil && !errors.Is(err, session.ErrNoToken) {
		return 0, nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return &httpResult{status: resp.StatusCode, body: respBody}, nil
	})
	if err != nil {
		return 0, nil, err
	}

	r := result.(*httpResult)
	return r.status, r.body, nil
}

type httpResult struct {
	status int
	body   []byte
}

func decodeMessage(body []byte) string {
	var m struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}
	return m.Message
}

// encodeRideRequestForm builds the multipart body the booking endpoint expects.
func encodeRideRequestForm(form *RideRequestForm) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for i, coord := range form.LocationCoordinates {
		_ = writer.WriteField(fmt.Sprintf("location_coordinates[%d][lat]", i), strconv.FormatFloat(coord.Lat, 'f', -1, 64))
		_ = writer.WriteField(fmt.Sprintf("location_coordinates[%d][lng]", i), strconv.FormatFloat(coord.Lng, 'f', -1, 64))
	}
	for i, loc := range form.Locations {
		_ = writer.WriteField(fmt.Sprintf("locations[%d]", i), loc)
	}

	fields := map[string]string{
		"ride_fare":                     form.RideFare,
		"service_id":                    form.ServiceID,
		"service_category_id":           form.ServiceCategoryID,
		"vehicle_type_id":               form.VehicleTypeID,
		"distance":                      form.Distance,
		"distance_unit":                 form.DistanceUnit,
		"payment_method":                form.PaymentMethod,
		"wallet_balance":                form.WalletBalance,
		"coupon":                        form.Coupon,
		"description":                   form.Description,
		"weight":                        form.Weight,
		"parcel_receiver[name]":         form.ReceiverName,
		"parcel_receiver[phone]":        form.ReceiverPhone,
		"parcel_receiver[country_code]": form.ReceiverCountryCode,
		"currency_code":                 form.CurrencyCode,
		"schedule_time":                 form.ScheduleTime,
	}
	for key, value := range fields {
		_ = writer.WriteField(key, value)
	}

	newRider := ""
	if form.NewRider != nil {
		encoded, err := json.Marshal(form.NewRider)
		if err != nil {
			return nil, "", err
		}
		newRider = string(encoded)
	}
	_ = writer.WriteField("new_rider", newRider)

	if form.CargoImage != nil {
		part, err := writer.CreateFormFile("cargo_image", form.CargoImage.FileName)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(form.CargoImage.Data); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
