package geo

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/novalyte/vantage/internal/attribution"
	"github.com/novalyte/vantage/internal/models"
)

// Location is one plotted city with its accumulated counters.
//
// Visitors grows from both passes, Leads only from the lead pass and
// Sessions only from page_view events. The descriptive Top* fields are
// first-write-wins: they freeze on the first record seen for the key
// while the counters keep accumulating.
type Location struct {
	City         string    `json:"city"`
	State        string    `json:"state"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	Visitors     int       `json:"visitors"`
	Leads        int       `json:"leads"`
	Sessions     int       `json:"sessions"`
	TopDevice    string    `json:"top_device,omitempty"`
	TopSource    string    `json:"top_source,omitempty"`
	TopTreatment string    `json:"top_treatment,omitempty"`
	LastActivity time.Time `json:"last_activity"`
}

// Aggregate folds leads then events into per-city location records,
// sorted by visitors descending. Records whose geo cannot be resolved
// contribute to no location; they still count in the non-map rollups.
// The result is rebuilt from scratch each call, so recomputation over
// the same batches is idempotent.
func Aggregate(leads []models.Lead, events []models.PageEvent) []Location {
	byKey := make(map[string]*Location)
	var order []string

	for _, l := range leads {
		key, ok := locationKey(l.GeoCity, l.GeoState)
		if !ok {
			continue
		}

		loc, exists := byKey[key]
		if !exists {
			point := Resolve(strings.TrimSpace(l.GeoCity), strings.TrimSpace(l.GeoState))
			if point == nil {
				continue
			}
			loc = &Location{
				City:         strings.TrimSpace(l.GeoCity),
				State:        strings.TrimSpace(l.GeoState),
				Lat:          point.Lat,
				Lng:          point.Lng,
				TopDevice:    l.DeviceType,
				TopSource:    attribution.Classify(l.UTMSource, l.UTMMedium, l.GCLID),
				TopTreatment: l.Treatment,
				LastActivity: l.CreatedAt,
			}
			byKey[key] = loc
			order = append(order, key)
		}

		loc.Visitors++
		loc.Leads++
		if l.CreatedAt.After(loc.LastActivity) {
			loc.LastActivity = l.CreatedAt
		}
	}

	for _, e := range events {
		key, ok := locationKey(e.GeoCity, e.GeoState)
		if !ok {
			continue
		}

		loc, exists := byKey[key]
		if !exists {
			point := eventPoint(e)
			if point == nil {
				continue
			}
			loc = &Location{
				City:         strings.TrimSpace(e.GeoCity),
				State:        strings.TrimSpace(e.GeoState),
				Lat:          point.Lat,
				Lng:          point.Lng,
				TopDevice:    e.DeviceType,
				TopSource:    attribution.Classify(e.UTMSource, e.UTMMedium, e.GCLID),
				LastActivity: e.CreatedAt,
			}
			byKey[key] = loc
			order = append(order, key)
		}

		loc.Visitors++
		if e.EventType == "page_view" {
			loc.Sessions++
		}
		if e.CreatedAt.After(loc.LastActivity) {
			loc.LastActivity = e.CreatedAt
		}
	}

	out := make([]Location, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Visitors > out[j].Visitors
	})
	return out
}

// eventPoint prefers coordinates embedded on the event by the collector
// over the static table, when both values are finite.
func eventPoint(e models.PageEvent) *Point {
	if e.GeoLat != nil && e.GeoLng != nil && isFinite(*e.GeoLat) && isFinite(*e.GeoLng) {
		return &Point{Lat: *e.GeoLat, Lng: *e.GeoLng}
	}
	return Resolve(strings.TrimSpace(e.GeoCity), strings.TrimSpace(e.GeoState))
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// locationKey normalizes the grouping key. An empty-empty pair is
// invalid and the record is skipped.
func locationKey(city, state string) (string, bool) {
	c := strings.ToLower(strings.TrimSpace(city))
	s := strings.ToLower(strings.TrimSpace(state))
	if c == "" && s == "" {
		return "", false
	}
	return c + "|" + s, true
}
