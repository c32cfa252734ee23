package domain

import (
	"context"
	"log/slog"
)

// GeocodeCountry is the country every board event is assumed to be in.
const GeocodeCountry = "Deutschland"

// EnrichWithGeocoding fills gaps in an event using the geocoder. Events
// without coordinates but with a postal code are forward geocoded; events
// with coordinates but no city are reverse geocoded for a place name. If
// geocoder is nil or geocoding fails, the event is returned with GeoSource
// set accordingly (graceful degradation).
func EnrichWithGeocoding(ctx context.Context, event Termin, geocoder Geocoder, logger *slog.Logger) Termin {
	if geocoder == nil {
		return event
	}

	_, hasCoords := event.Geo()

	if !hasCoords && event.PostalCode != "" {
		result, err := geocoder.ForwardGeocode(ctx, event.PostalCode, GeocodeCountry)
		if err != nil {
			logger.Warn("forward geocoding failed",
				"index", event.OriginalIndex,
				"plz", event.PostalCode,
				"error", err,
			)
			event.GeoSource = "failed"
			return event
		}
		if result.Lat != 0 || result.Lon != 0 {
			event.Coords = []float64{result.Lat, result.Lon}
			if event.City == "" {
				event.City = result.PlaceName
			}
			event.GeoSource = "forward"
			return event
		}
		event.GeoSource = "original"
		return event
	}

	if hasCoords && event.City == "" {
		geo, _ := event.Geo()
		result, err := geocoder.ReverseGeocode(ctx, geo.Lat, geo.Lon)
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"index", event.OriginalIndex,
				"lat", geo.Lat,
				"lon", geo.Lon,
				"error", err,
			)
			event.GeoSource = "failed"
			return event
		}
		if result.PlaceName != "" {
			event.City = result.PlaceName
			event.GeoSource = "reverse"
			return event
		}
	}

	event.GeoSource = "original"
	return event
}
