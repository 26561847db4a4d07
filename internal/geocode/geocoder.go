// Package geocode resolves addresses and coordinates through the Google
// geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/beekyynd/taxi/pkg/logger"
)

// AddressNotFound is the placeholder shown when reverse geocoding cannot
// produce a readable address. The UI never sees a geocoding error.
const AddressNotFound = "Address not found"

const defaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Point is a geographic coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Geocoder calls the Google geocoding API.
type Geocoder struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Geocoder.
type Option func(*Geocoder)

// WithBaseURL overrides the API endpoint, for tests.
func WithBaseURL(baseURL string) Option {
	return func(g *Geocoder) { g.baseURL = baseURL }
}

// NewGeocoder creates a Geocoder with the given API key.
func NewGeocoder(apiKey string, opts ...Option) *Geocoder {
	g := &Geocoder{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location Point `json:"location"`
		} `json:"geometry"`
		AddressComponents []struct {
			LongName string   `json:"long_name"`
			Types    []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

// Forward resolves an address to coordinates. It errors when the address
// produces no results.
func (g *Geocoder) Forward(ctx context.Context, address string) (Point, error) {
	query := url.Values{}
	query.Set("address", address)
	query.Set("key", g.apiKey)

	resp, err := g.fetch(ctx, query)
	if err != nil {
		return Point{}, err
	}
	if len(resp.Results) == 0 {
		return Point{}, fmt.Errorf("geocode: no results for %q", address)
	}
	return resp.Results[0].Geometry.Location, nil
}

// Reverse resolves coordinates to a readable street address. Failures degrade
// to the AddressNotFound placeholder.
func (g *Geocoder) Reverse(ctx context.Context, lat, lng float64) string {
	query := url.Values{}
	query.Set("latlng", fmt.Sprintf("%f,%f", lat, lng))
	query.Set("key", g.apiKey)
	query.Set("result_type", "street_address|route|intersection")

	resp, err := g.fetch(ctx, query)
	if err != nil {
		logger.Warn("reverse geocode failed", zap.Error(err))
		return AddressNotFound
	}
	if resp.Status != "OK" || len(resp.Results) == 0 || resp.Results[0].FormattedAddress == "" {
		return AddressNotFound
	}
	return resp.Results[0].FormattedAddress
}

// City extracts the locality name for the coordinates, falling back through
// the district-level component.
func (g *Geocoder) City(ctx context.Context, lat, lng float64) (string, error) {
	query := url.Values{}
	query.Set("latlng", fmt.Sprintf("%f,%f", lat, lng))
	query.Set("key", g.apiKey)
	query.Set("result_type", "street_address")

	resp, err := g.fetch(ctx, query)
	if err != nil {
		return "", err
	}
	if resp.Status != "OK" || len(resp.Results) == 0 {
		return "", fmt.Errorf("geocode: no city for %f,%f", lat, lng)
	}

	for _, component := range resp.Results[0].AddressComponents {
		for _, componentType := range component.Types {
			if componentType == "locality" || componentType == "administrative_area_level_2" {
				return component.LongName, nil
			}
		}
	}
	return "", fmt.Errorf("geocode: no locality component for %f,%f", lat, lng)
}

func (g *Geocoder) fetch(ctx context.Context, query url.Values) (*geocodeResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	httpResp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode: unexpected status %d", httpResp.StatusCode)
	}

	var decoded geocodeResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("geocode: decode response: %w", err)
	}
	return &decoded, nil
}
