package handlers

import (
	"math"
	"net/http"
	"strconv"

	api "squeegee/pkg/api/squeegee"
	"squeegee/pkg/middleware"
)

func parseCoordinates(c middleware.Context) (float64, float64, bool) {
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
	if latErr != nil || lngErr != nil ||
		math.IsNaN(lat) || math.IsInf(lat, 0) ||
		math.IsNaN(lng) || math.IsInf(lng, 0) ||
		lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		respondError(c, http.StatusBadRequest, codeValidation, "lat and lng must be valid coordinates")
		return 0, 0, false
	}
	return lat, lng, true
}

// GetNearbyRoads returns road names around a coordinate via the bounded
// upstream sweep.
func GetNearbyRoads(c middleware.Context) {
	lat, lng, ok := parseCoordinates(c)
	if !ok {
		return
	}

	if geoClient == nil {
		respondError(c, http.StatusInternalServerError, codeInternal, "geocoding service is not configured")
		return
	}

	result, err := geoClient.NearbyRoads(c.Request.Context(), lat, lng)
	if err != nil {
		logger.WithError(err).Warn("Nearby roads sweep failed")
		respondUpstreamError(c, err, "failed to look up nearby roads")
		return
	}

	c.JSON(http.StatusOK, api.NearbyRoadsResponse{
		Names:  result.Names,
		Source: result.Source,
	})
}

// ReverseGeocode proxies the reverse geocode lookup and returns the raw
// upstream JSON.
func ReverseGeocode(c middleware.Context) {
	lat, lng, ok := parseCoordinates(c)
	if !ok {
		return
	}

	if geoClient == nil {
		respondError(c, http.StatusInternalServerError, codeInternal, "geocoding service is not configured")
		return
	}

	raw, err := geoClient.ReverseGeocode(c.Request.Context(), lat, lng)
	if err != nil {
		logger.WithError(err).Warn("Reverse geocode failed")
		respondUpstreamError(c, err, "failed to reverse geocode")
		return
	}

	c.Data(http.StatusOK, "application/json", raw)
}
