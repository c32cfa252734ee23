package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat              float64 `json:"lat"`
	Lon              float64 `json:"lon"`
	FormattedAddress string  `json:"formatted_address"`
	PlaceName        string  `json:"place_name"`
	Confidence       float64 `json:"confidence"` // 0.0–1.0 provider confidence score
}

// Geocoder fills in missing coordinates or place names for events.
type Geocoder interface {
	// ForwardGeocode converts a postal code within a country to coordinates.
	ForwardGeocode(ctx context.Context, postalCode, country string) (GeocodingResult, error)

	// ReverseGeocode converts coordinates to place details.
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}
