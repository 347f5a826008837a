package assembler

import (
	"context"
	"fmt"
	"strings"

	"tourcast/internal/domain"
	"tourcast/internal/geo"
)

// resolveStops geocodes each stop near the subject anchor. Geocoding is best
// effort: a stop that does not resolve keeps nil coordinates and the tour
// proceeds.
func (a *Assembler) resolveStops(ctx context.Context, subject domain.Subject, stops []Stop) {
	if a.geocoder == nil {
		return
	}
	var anchor *domain.Coordinates
	if subject.Latitude != nil && subject.Longitude != nil {
		anchor = &domain.Coordinates{Latitude: *subject.Latitude, Longitude: *subject.Longitude}
	}
	for i := range stops {
		query := stops[i].Address
		if query == "" {
			query = strings.TrimSpace(strings.Join([]string{stops[i].Name, subject.Name, subject.City}, ", "))
		}
		place, err := a.geocoder.Geocode(ctx, query, anchor)
		if err != nil {
			a.logger.Debug().Err(err).Str("stop", stops[i].Name).Msg("assembler: stop did not geocode")
			continue
		}
		coords := place.Coordinates
		stops[i].Coordinates = &coords
	}
}

// walkabilityWarnings checks the geocoded route against walking limits and
// returns human-readable warnings for an infeasible tour.
func (a *Assembler) walkabilityWarnings(stops []Stop, durationMinutes int) []string {
	var points []domain.Coordinates
	var names []string
	for _, s := range stops {
		if s.Coordinates != nil {
			points = append(points, *s.Coordinates)
			names = append(names, s.Name)
		}
	}
	if len(points) < 2 {
		return nil
	}

	var warnings []string
	for i := 1; i < len(points); i++ {
		leg := geo.DistanceMeters(points[i-1], points[i])
		if leg > a.maxLegMeters {
			warnings = append(warnings, fmt.Sprintf(
				"leg from %q to %q is %.0fm, above the %.0fm walking limit",
				names[i-1], names[i], leg, a.maxLegMeters))
		}
	}
	total := geo.PathMeters(points)
	if total > a.maxTotalMeters {
		walkMinutes := total / a.walkingSpeedMPerMin
		warnings = append(warnings, fmt.Sprintf(
			"route covers %.0fm (about %.0f minutes of walking), above the %.0fm limit for a %d minute tour",
			total, walkMinutes, a.maxTotalMeters, durationMinutes))
	}
	return warnings
}
