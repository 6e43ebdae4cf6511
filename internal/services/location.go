package services

import (
	"math"

	"github.com/localpro/backend/internal/models"
)

const earthRadiusKm = 6371.0

// Distance bands: within each band the slot is worth the given fraction of
// its maximum. Past the last band proximity is worth nothing.
var distanceBands = []struct {
	maxKm    float64
	fraction float64
}{
	{5, 1.0},
	{10, 0.8},
	{25, 0.6},
	{50, 0.4},
	{100, 0.2},
}

// Categorical fractions used when either side has no coordinates.
const (
	localityFraction = 1.0
	cityFraction     = 0.75
	regionFraction   = 0.5
)

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// LocationScore computes the proximity fraction (0..1) between a task's
// location and a provider's, plus the distance when both carry coordinates.
// Remote tasks always score full: location is irrelevant. A max-travel
// constraint that is exceeded forces zero regardless of band. The function is
// deterministic and side-effect free.
func LocationScore(taskLoc models.Location, remote bool, maxDistanceKm *float64, providerLoc models.Location) (float64, *float64) {
	if remote {
		return 1.0, nil
	}

	if taskLoc.HasCoordinates() && providerLoc.HasCoordinates() {
		dist := HaversineKm(*taskLoc.Latitude, *taskLoc.Longitude, *providerLoc.Latitude, *providerLoc.Longitude)
		if maxDistanceKm != nil && dist > *maxDistanceKm {
			return 0, &dist
		}
		for _, band := range distanceBands {
			if dist <= band.maxKm {
				return band.fraction, &dist
			}
		}
		return 0, &dist
	}

	switch {
	case taskLoc.SameLocality(providerLoc):
		return localityFraction, nil
	case taskLoc.SameCity(providerLoc):
		return cityFraction, nil
	case taskLoc.SameRegion(providerLoc):
		return regionFraction, nil
	}
	return 0, nil
}
