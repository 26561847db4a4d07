package drivers

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beekyynd/taxi/internal/docstore"
)

// Ashgabat city centre; offsets below are roughly 1.1 km per 0.01 degree
// of latitude.
const (
	pickupLat = 37.9601
	pickupLng = 58.3261
)

func trackDoc(id, online, vehicleType string, lat, lng float64) docstore.Document {
	return docstore.Document{
		ID:     id,
		Exists: true,
		Data: map[string]interface{}{
			"is_online":       online,
			"vehicle_type_id": vehicleType,
			"lat":             floatString(lat),
			"lng":             floatString(lng),
		},
	}
}

func floatString(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func TestNearbyFiltersAndSorts(t *testing.T) {
	store := docstore.NewFakeStore()
	store.SeedCollection("driverTrack", []docstore.Document{
		trackDoc("close", "1", "7", pickupLat+0.005, pickupLng),
		trackDoc("closer", "1", "7", pickupLat+0.001, pickupLng),
		trackDoc("offline", "0", "7", pickupLat+0.001, pickupLng),
		trackDoc("wrong-vehicle", "1", "9", pickupLat+0.001, pickupLng),
		trackDoc("too-far", "1", "7", pickupLat+0.2, pickupLng),
	})

	found, err := NewFinder(store).Nearby(context.Background(), pickupLat, pickupLng, "7")
	require.NoError(t, err)

	require.Len(t, found, 2)
	assert.Equal(t, "closer", found[0].ID)
	assert.Equal(t, "close", found[1].ID)
	assert.Less(t, found[0].DistanceKm, found[1].DistanceKm)
}

func TestNearbySkipsUnparseableCoordinates(t *testing.T) {
	store := docstore.NewFakeStore()
	store.SeedCollection("driverTrack", []docstore.Document{
		{
			ID:     "bad-coords",
			Exists: true,
			Data: map[string]interface{}{
				"is_online":       "1",
				"vehicle_type_id": "7",
				"lat":             "not-a-number",
				"lng":             "58.3261",
			},
		},
	})

	found, err := NewFinder(store).Nearby(context.Background(), pickupLat, pickupLng, "7")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestNearbyEmptyCollection(t *testing.T) {
	store := docstore.NewFakeStore()

	found, err := NewFinder(store).Nearby(context.Background(), pickupLat, pickupLng, "7")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestHaversineKnownDistance(t *testing.T) {
	// one degree of latitude is ~111.2 km
	distance := haversineKm(0, 0, 1, 0)
	assert.InDelta(t, 111.2, distance, 0.5)
}
