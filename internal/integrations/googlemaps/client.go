// Package googlemaps wraps the Google Maps Platform client behind the narrow
// geocoding and transit-directions contracts the matching engine depends on.
package googlemaps

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"github.com/maikyonn/optimat-core/internal/geo"
	"github.com/maikyonn/optimat-core/internal/match"
	"github.com/maikyonn/optimat-core/internal/utils"
)

const (
	callTimeout   = 10 * time.Second
	retryAttempts = 3
	retryBase     = 500 * time.Millisecond
)

type Client struct {
	api *maps.Client
}

func NewClient(apiKey string) (*Client, error) {
	api, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &Client{api: api}, nil
}

// Geocode resolves a free-text address to its best-ranked coordinate.
func (c *Client) Geocode(ctx context.Context, address string) (match.Address, error) {
	results, err := c.geocode(ctx, address)
	if err != nil {
		return match.Address{}, err
	}
	if len(results) == 0 {
		return match.Address{}, fmt.Errorf("no geocoding results for %q", address)
	}
	return toAddress(results[0]), nil
}

// SearchAddresses returns up to limit candidate matches for a free-text
// address query.
func (c *Client) SearchAddresses(ctx context.Context, query string, limit int) ([]match.Address, error) {
	results, err := c.geocode(ctx, query)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	addresses := make([]match.Address, 0, len(results))
	for _, r := range results {
		addresses = append(addresses, toAddress(r))
	}
	return addresses, nil
}

func (c *Client) geocode(ctx context.Context, address string) ([]maps.GeocodingResult, error) {
	var results []maps.GeocodingResult
	err := utils.Retry(ctx, retryAttempts, retryBase, func() error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		var err error
		results, err = c.api.Geocode(callCtx, &maps.GeocodingRequest{Address: address})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("geocoding request failed: %w", err)
	}
	return results, nil
}

func toAddress(r maps.GeocodingResult) match.Address {
	return match.Address{
		Label: r.FormattedAddress,
		Point: geo.Point{Lng: r.Geometry.Location.Lng, Lat: r.Geometry.Location.Lat},
	}
}

// TransitSummary fetches one public-transit itinerary for the trip and
// condenses it to duration, distance and the transit lines used.
func (c *Client) TransitSummary(ctx context.Context, origin, destination geo.Point) (*match.TransitSummary, error) {
	var routes []maps.Route
	err := utils.Retry(ctx, retryAttempts, retryBase, func() error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		var err error
		routes, _, err = c.api.Directions(callCtx, &maps.DirectionsRequest{
			Origin:      fmt.Sprintf("%f,%f", origin.Lat, origin.Lng),
			Destination: fmt.Sprintf("%f,%f", destination.Lat, destination.Lng),
			Mode:        maps.TravelModeTransit,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("directions request failed: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, fmt.Errorf("no transit route found")
	}

	leg := routes[0].Legs[0]
	summary := &match.TransitSummary{
		Duration: leg.Duration.Round(time.Minute).String(),
		Distance: leg.Distance.HumanReadable,
	}
	for _, step := range leg.Steps {
		if step.TransitDetails == nil {
			continue
		}
		line := step.TransitDetails.Line.ShortName
		if line == "" {
			line = step.TransitDetails.Line.Name
		}
		if line != "" {
			summary.Lines = append(summary.Lines, line)
		}
	}
	return summary, nil
}
