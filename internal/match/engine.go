package match

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/maikyonn/optimat-core/internal/geo"
	"github.com/maikyonn/optimat-core/internal/store"
)

// ValidationError marks malformed caller input (unparsable time, unknown
// address). It is surfaced back to the model as a tool failure rather than
// aborting the turn.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Address is a geocoded location.
type Address struct {
	Label string    `json:"label"`
	Point geo.Point `json:"point"`
}

// TransitSummary is a one-route public-transit overview for the same trip.
type TransitSummary struct {
	Duration string   `json:"duration"`
	Distance string   `json:"distance"`
	Lines    []string `json:"lines,omitempty"`
}

// Geocoder resolves a free-text address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Address, error)
}

// TransitPlanner fetches a public-transit itinerary summary for a trip.
type TransitPlanner interface {
	TransitSummary(ctx context.Context, origin, destination geo.Point) (*TransitSummary, error)
}

// ProviderSource supplies the candidate provider list. Providers change
// rarely, so a plain read-only snapshot per call is sufficient.
type ProviderSource interface {
	ListProviders(ctx context.Context) ([]store.Provider, error)
}

// Query carries one provider search. Source/destination addresses and both
// times are required; the rest are optional filters.
type Query struct {
	SourceAddress      string
	DestinationAddress string
	DepartureTime      string
	ReturnTime         string
	TravelDate         string // "YYYY-MM-DD", optional
	EligibilityType    string
	ScheduleType       string
	ProviderType       string
	IncludeUnzoned     *bool // overrides the engine-wide policy when set
}

// ProviderMatch is a provider that can serve the trip. The raw service-zone
// geometry is stripped from results; only the derived HasZone flag remains.
type ProviderMatch struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	ProviderType    string   `json:"provider_type,omitempty"`
	EligibilityType string   `json:"eligibility_type,omitempty"`
	ScheduleType    string   `json:"schedule_type,omitempty"`
	HasZone         bool     `json:"has_zone"`
	Hours           []Window `json:"hours"`
}

// Result is the full outcome of one FindProviders call.
type Result struct {
	Origin      Address         `json:"origin"`
	Destination Address         `json:"destination"`
	Providers   []ProviderMatch `json:"providers"`
	Transit     *TransitSummary `json:"transit,omitempty"`
}

type Engine struct {
	providers      ProviderSource
	geocoder       Geocoder
	transit        TransitPlanner
	includeUnzoned bool
	requireDate    bool
}

func NewEngine(providers ProviderSource, geocoder Geocoder, transit TransitPlanner, includeUnzoned, requireDate bool) *Engine {
	return &Engine{
		providers:      providers,
		geocoder:       geocoder,
		transit:        transit,
		includeUnzoned: includeUnzoned,
		requireDate:    requireDate,
	}
}

// FindProviders filters the provider list down to those whose service zone
// contains both trip endpoints and whose service hours cover both travel
// times. Zero matches is a valid result. The transit summary is best-effort
// and never fails the call.
func (e *Engine) FindProviders(ctx context.Context, q Query) (*Result, error) {
	departure, err := ParseClockTime(q.DepartureTime)
	if err != nil {
		return nil, validationf("invalid departure_time: %v", err)
	}
	ret, err := ParseClockTime(q.ReturnTime)
	if err != nil {
		return nil, validationf("invalid return_time: %v", err)
	}

	var travelDay DayMask
	hasDay := false
	if q.TravelDate != "" {
		date, err := time.Parse("2006-01-02", q.TravelDate)
		if err != nil {
			return nil, validationf("invalid travel_date %q (want YYYY-MM-DD)", q.TravelDate)
		}
		travelDay = MaskForWeekday(date.Weekday())
		hasDay = true
	} else if e.requireDate {
		return nil, validationf("travel_date is required")
	}

	origin, err := e.geocoder.Geocode(ctx, q.SourceAddress)
	if err != nil {
		return nil, validationf("could not resolve source address %q: %v", q.SourceAddress, err)
	}
	destination, err := e.geocoder.Geocode(ctx, q.DestinationAddress)
	if err != nil {
		return nil, validationf("could not resolve destination address %q: %v", q.DestinationAddress, err)
	}

	providers, err := e.providers.ListProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load providers: %w", err)
	}

	includeUnzoned := e.includeUnzoned
	if q.IncludeUnzoned != nil {
		includeUnzoned = *q.IncludeUnzoned
	}

	matches := make([]ProviderMatch, 0, len(providers))
	for _, p := range providers {
		if !matchesFilter(p.EligibilityType, q.EligibilityType) ||
			!matchesFilter(p.ScheduleType, q.ScheduleType) ||
			!matchesFilter(p.ProviderType, q.ProviderType) {
			continue
		}

		hasZone := len(p.ServiceZone) > 0
		if hasZone {
			zone, err := geo.ParseZone(p.ServiceZone)
			if err != nil {
				log.Printf("provider %s (%s): skipping, bad service zone: %v", p.Name, p.ID, err)
				continue
			}
			if !zone.Contains(origin.Point) || !zone.Contains(destination.Point) {
				continue
			}
		} else if !includeUnzoned {
			continue
		}

		windows, err := parseWindows(p.ServiceHours)
		if err != nil {
			log.Printf("provider %s (%s): skipping, bad service hours: %v", p.Name, p.ID, err)
			continue
		}
		if !windowsCover(windows, travelDay, hasDay, departure) || !windowsCover(windows, travelDay, hasDay, ret) {
			continue
		}

		matches = append(matches, ProviderMatch{
			ID:              p.ID,
			Name:            p.Name,
			ProviderType:    p.ProviderType,
			EligibilityType: p.EligibilityType,
			ScheduleType:    p.ScheduleType,
			HasZone:         hasZone,
			Hours:           windows,
		})
	}

	result := &Result{
		Origin:      origin,
		Destination: destination,
		Providers:   matches,
	}

	if e.transit != nil {
		transit, err := e.transit.TransitSummary(ctx, origin.Point, destination.Point)
		if err != nil {
			log.Printf("transit summary unavailable for %q -> %q: %v", q.SourceAddress, q.DestinationAddress, err)
		} else {
			result.Transit = transit
		}
	}

	return result, nil
}

// matchesFilter applies an optional case-insensitive attribute filter.
func matchesFilter(value, want string) bool {
	if want == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(want))
}

func parseWindows(raw json.RawMessage) ([]Window, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var windows []Window
	if err := json.Unmarshal(raw, &windows); err != nil {
		return nil, fmt.Errorf("failed to decode service hours: %w", err)
	}
	return windows, nil
}

// windowsCover reports whether any window covers the minute t. With a known
// travel day the window's day pattern must include it; without one, any
// window counts regardless of weekday.
func windowsCover(windows []Window, day DayMask, hasDay bool, t int) bool {
	for _, w := range windows {
		if hasDay && !w.Days.Has(day) {
			continue
		}
		if w.Covers(t) {
			return true
		}
	}
	return false
}
