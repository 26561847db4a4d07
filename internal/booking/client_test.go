package booking

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beekyynd/taxi/internal/fare"
	"github.com/beekyynd/taxi/internal/session"
	"github.com/beekyynd/taxi/pkg/storage"
)

func testSessions(t *testing.T, token string) *session.Manager {
	t.Helper()
	store := storage.NewMemoryStore()
	sessions := session.NewManager(store)
	if token != "" {
		require.NoError(t, sessions.SetToken(context.Background(), token))
	}
	return sessions
}

func validForm() *RideRequestForm {
	return &RideRequestForm{
		LocationCoordinates: []LatLng{{Lat: 40.4093, Lng: 49.8671}, {Lat: 40.3777, Lng: 49.8920}},
		Locations:           []string{"28 May Street", "Port Baku"},
		RideFare:            "85.00",
		ServiceID:           "1",
		ServiceCategoryID:   "2",
		VehicleTypeID:       "7",
		PaymentMethod:       "cash",
		CurrencyCode:        "USD",
	}
}

func TestCreateRideRequestSuccess(t *testing.T) {
	var gotAuth, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		require.Equal(t, "/api/rideRequest", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "85.00", r.FormValue("ride_fare"))
		assert.Equal(t, "7", r.FormValue("vehicle_type_id"))
		assert.Equal(t, "40.4093", r.FormValue("location_coordinates[0][lat]"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 42, "drivers": [3, 9]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, testSessions(t, "tok123"))

	resp, err := client.CreateRideRequest(context.Background(), validForm())
	require.NoError(t, err)

	assert.Equal(t, "42", resp.RideRequestID())
	require.Len(t, resp.Drivers, 2)
	assert.Equal(t, "Bearer tok123", gotAuth)
	assert.Contains(t, gotContentType, "multipart/form-data")
}

func TestCreateRideRequestSessionExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, testSessions(t, "stale"))

	_, err := client.CreateRideRequest(context.Background(), validForm())
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestCreateRideRequestServerMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message": "no drivers in this zone"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, testSessions(t, "tok"))

	_, err := client.CreateRideRequest(context.Background(), validForm())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "no drivers in this zone", apiErr.Message)
}

func TestCreateRideRequestValidationFailsBeforeNetwork(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, testSessions(t, "tok"))

	form := validForm()
	form.VehicleTypeID = ""
	_, err := client.CreateRideRequest(context.Background(), form)

	assert.Error(t, err)
	assert.False(t, called, "invalid form must not reach the wire")
}

func TestUpdateRideRequest(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"success": true}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, testSessions(t, "tok"))

	require.NoError(t, client.UpdateRideRequest(context.Background(), "42", "cancelled"))
	assert.Equal(t, "/api/updateRideRequest/42", gotPath)
}

func TestVerifyCouponNormalizesPercentage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"success": true,
			"coupon_type": "percentage",
			"amount": 15,
			"min_spend": 50,
			"is_apply_all": 0,
			"applicable_vehicles": [7, 9]
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, testSessions(t, "tok"))

	coupon, err := client.VerifyCoupon(context.Background(), &CouponVerifyRequest{
		Coupon:    "SAVE15",
		ServiceID: "1",
	})
	require.NoError(t, err)

	assert.Equal(t, "SAVE15", coupon.Code)
	assert.Equal(t, fare.CouponPercentage, coupon.Type)
	assert.Equal(t, 15.0, coupon.Amount)
	assert.Equal(t, 50.0, coupon.MinSpend)
	assert.False(t, coupon.ApplyAll)
	assert.Equal(t, []string{"7", "9"}, coupon.ApplicableVehicleIDs)
}

func TestVerifyCouponNormalizesFlat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"success": true,
			"coupon_type": "fixed",
			"total_coupon_discount": 15,
			"is_apply_all": 1
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, testSessions(t, "tok"))

	coupon, err := client.VerifyCoupon(context.Background(), &CouponVerifyRequest{Coupon: "FLAT15", ServiceID: "1"})
	require.NoError(t, err)

	assert.Equal(t, fare.CouponFlat, coupon.Type)
	assert.Equal(t, 15.0, coupon.Amount)
	assert.True(t, coupon.ApplyAll)
}

func TestVerifyCouponRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "message": "coupon expired"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, testSessions(t, "tok"))

	_, err := client.VerifyCoupon(context.Background(), &CouponVerifyRequest{Coupon: "OLD", ServiceID: "1"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "coupon expired", apiErr.Message)
}
