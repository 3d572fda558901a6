// Package geocode annotates latest reports with a human-readable place
// name via the Google Maps reverse geocoding API.
package geocode

import (
	"context"
	"fmt"

	cmap "github.com/orcaman/concurrent-map/v2"
	"googlemaps.github.io/maps"
)

// Geocoder resolves coordinates into a display place name.
type Geocoder interface {
	Place(ctx context.Context, lat, lon float64) (string, error)
}

// GoogleGeocoder uses the Google Maps API with an in-memory result
// cache. Coordinates are rounded to ~10 m before lookup so a parked
// device does not burn quota on every cycle.
type GoogleGeocoder struct {
	client *maps.Client
	cache  cmap.ConcurrentMap[string, string]
}

// NewGoogleGeocoder creates a new GoogleGeocoder instance.
func NewGoogleGeocoder(apiKey string) (*GoogleGeocoder, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &GoogleGeocoder{
		client: c,
		cache:  cmap.New[string](),
	}, nil
}

// Place returns the formatted address of the nearest result, or an
// empty string when the API has no result for the coordinates.
func (g *GoogleGeocoder) Place(ctx context.Context, lat, lon float64) (string, error) {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)
	if place, ok := g.cache.Get(key); ok {
		return place, nil
	}

	resp, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: lat, Lng: lon},
	})
	if err != nil {
		return "", err
	}
	if len(resp) == 0 {
		return "", nil
	}

	place := resp[0].FormattedAddress
	g.cache.Set(key, place)
	return place, nil
}
