// Package drivers finds online drivers near a pickup point from the realtime
// driverTrack collection.
package drivers

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/uber/h3-go/v4"
	"go.uber.org/zap"

	"github.com/beekyynd/taxi/internal/docstore"
	"github.com/beekyynd/taxi/pkg/logger"
)

// H3 prefilter parameters. At resolution 8 (~460m edge) a grid disk of k=7
// covers a little over the 3 km search radius; haversine does the exact cut.
const (
	h3Resolution = 8
	h3DiskRadius = 7

	// DefaultRadiusKm is the pickup search radius.
	DefaultRadiusKm = 3.0
)

// Driver is one matching driverTrack entry.
type Driver struct {
	ID            string
	VehicleTypeID string
	Lat           float64
	Lng           float64
	DistanceKm    float64
	Data          map[string]interface{}
}

// Finder scans driverTrack for nearby online drivers.
type Finder struct {
	store    docstore.Store
	radiusKm float64
}

// NewFinder creates a Finder with the default 3 km radius.
func NewFinder(store docstore.Store) *Finder {
	return &Finder{store: store, radiusKm: DefaultRadiusKm}
}

// Nearby returns online drivers of the requested vehicle type within the
// search radius of the pickup point, nearest first. An empty vehicleTypeID
// matches every type.
func (f *Finder) Nearby(ctx context.Context, pickupLat, pickupLng float64, vehicleTypeID string) ([]Driver, error) {
	docs, err := f.store.ListDocuments(ctx, "driverTrack")
	if err != nil {
		return nil, fmt.Errorf("list driverTrack: %w", err)
	}

	disk := diskCells(pickupLat, pickupLng)

	var found []Driver
	for _, doc := range docs {
		online := asString(doc.Data["is_online"])
		if online != "1" {
			continue
		}
		docVehicleType := asString(doc.Data["vehicle_type_id"])
		if vehicleTypeID != "" && docVehicleType != vehicleTypeID {
			continue
		}

		lat, okLat := asCoord(doc.Data["lat"])
		lng, okLng := asCoord(doc.Data["lng"])
		if !okLat || !okLng {
			continue
		}

		if disk != nil && !inDisk(disk, lat, lng) {
			continue
		}

		distance := haversineKm(pickupLat, pickupLng, lat, lng)
		if distance > f.radiusKm {
			continue
		}

		found = append(found, Driver{
			ID:            doc.ID,
			VehicleTypeID: docVehicleType,
			Lat:           lat,
			Lng:           lng,
			DistanceKm:    distance,
			Data:          doc.Data,
		})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].DistanceKm < found[j].DistanceKm })

	logger.Debug("nearby driver scan",
		zap.String("vehicle_type_id", vehicleTypeID),
		zap.Int("scanned", len(docs)),
		zap.Int("matched", len(found)),
	)
	return found, nil
}

// diskCells returns the H3 cells around the pickup, or nil when the cell
// cannot be computed (the haversine filter still applies on its own).
func diskCells(lat, lng float64) map[h3.Cell]struct{} {
	origin, err := h3.LatLngToCell(h3.NewLatLng(lat, lng), h3Resolution)
	if err != nil {
		return nil
	}
	cells, err := origin.GridDisk(h3DiskRadius)
	if err != nil {
		return nil
	}
	set := make(map[h3.Cell]struct{}, len(cells))
	for _, cell := range cells {
		set[cell] = struct{}{}
	}
	return set
}

func inDisk(disk map[h3.Cell]struct{}, lat, lng float64) bool {
	cell, err := h3.LatLngToCell(h3.NewLatLng(lat, lng), h3Resolution)
	if err != nil {
		return true
	}
	_, ok := disk[cell]
	return ok
}

// haversineKm calculates great-circle distance in km.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180.0
	dLon := (lon2 - lon1) * math.Pi / 180.0
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180.0)*math.Cos(lat2*math.Pi/180.0)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadius * c
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

// asCoord accepts both string and numeric coordinates; driverTrack stores
// them as strings.
func asCoord(v interface{}) (float64, bool) {
	switch value := v.(type) {
	case string:
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	case float64:
		return value, true
	case int64:
		return float64(value), true
	default:
		return 0, false
	}
}
