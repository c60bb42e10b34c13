package geo

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novalyte/vantage/internal/models"
)

var baseTime = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

func leadAt(city, state string, offset time.Duration) models.Lead {
	return models.Lead{
		ID:         city + "-lead",
		CreatedAt:  baseTime.Add(offset),
		GeoCity:    city,
		GeoState:   state,
		DeviceType: "mobile",
		Treatment:  "joint pain",
		Status:     "new",
	}
}

func eventAt(city, state, eventType string, offset time.Duration) models.PageEvent {
	return models.PageEvent{
		ID:         city + "-evt",
		CreatedAt:  baseTime.Add(offset),
		SessionID:  "s-" + city,
		EventType:  eventType,
		GeoCity:    city,
		GeoState:   state,
		DeviceType: "desktop",
	}
}

func TestAggregateLeadCreatesLocation(t *testing.T) {
	locs := Aggregate([]models.Lead{leadAt("Phoenix", "AZ", 0)}, nil)

	require.Len(t, locs, 1)
	loc := locs[0]
	assert.Equal(t, "Phoenix", loc.City)
	assert.Equal(t, "AZ", loc.State)
	assert.Equal(t, 1, loc.Visitors)
	assert.Equal(t, 1, loc.Leads)
	assert.Zero(t, loc.Sessions)
	assert.Equal(t, "mobile", loc.TopDevice)
	assert.Equal(t, "joint pain", loc.TopTreatment)
	assert.Equal(t, "Direct", loc.TopSource)
	assert.InDelta(t, 33.4484, loc.Lat, 0.0001)
}

func TestAggregateUnresolvableLeadIsSkipped(t *testing.T) {
	locs := Aggregate([]models.Lead{leadAt("Springfield", "ZZ", 0)}, nil)
	assert.Empty(t, locs)
}

func TestAggregateEmptyEmptyKeyIsInvalid(t *testing.T) {
	locs := Aggregate([]models.Lead{leadAt("", "", 0)}, []models.PageEvent{eventAt("", "  ", "page_view", 0)})
	assert.Empty(t, locs)
}

func TestAggregateDescriptiveFieldsFirstWriteWins(t *testing.T) {
	first := leadAt("Phoenix", "AZ", 0)
	second := leadAt("Phoenix", "AZ", time.Hour)
	second.DeviceType = "desktop"
	second.Treatment = "hair loss"

	locs := Aggregate([]models.Lead{first, second}, nil)

	require.Len(t, locs, 1)
	assert.Equal(t, 2, locs[0].Visitors)
	assert.Equal(t, 2, locs[0].Leads)
	assert.Equal(t, "mobile", locs[0].TopDevice)
	assert.Equal(t, "joint pain", locs[0].TopTreatment)
	assert.Equal(t, baseTime.Add(time.Hour), locs[0].LastActivity)
}

func TestAggregateSessionsOnlyCountPageViews(t *testing.T) {
	events := []models.PageEvent{
		eventAt("Phoenix", "AZ", "page_view", 0),
		eventAt("Phoenix", "AZ", "quiz_start", time.Minute),
		eventAt("Phoenix", "AZ", "page_view", 2*time.Minute),
	}

	locs := Aggregate(nil, events)

	require.Len(t, locs, 1)
	assert.Equal(t, 3, locs[0].Visitors)
	assert.Equal(t, 2, locs[0].Sessions)
	assert.Zero(t, locs[0].Leads)
}

func TestAggregatePrefersEmbeddedCoordinates(t *testing.T) {
	lat, lng := 33.5012, -111.9250
	evt := eventAt("Scottsdale", "AZ", "page_view", 0)
	evt.GeoLat = &lat
	evt.GeoLng = &lng

	locs := Aggregate(nil, []models.PageEvent{evt})

	require.Len(t, locs, 1)
	assert.InDelta(t, 33.5012, locs[0].Lat, 0.0001)
	assert.InDelta(t, -111.9250, locs[0].Lng, 0.0001)
}

func TestAggregateIgnoresNonFiniteEmbeddedCoordinates(t *testing.T) {
	lat, lng := math.NaN(), -111.9250
	evt := eventAt("Scottsdale", "AZ", "page_view", 0)
	evt.GeoLat = &lat
	evt.GeoLng = &lng

	locs := Aggregate(nil, []models.PageEvent{evt})

	require.Len(t, locs, 1)
	// Falls back to the metro table.
	assert.InDelta(t, 33.4942, locs[0].Lat, 0.0001)
}

func TestAggregateKeyIsCaseAndWhitespaceNormalized(t *testing.T) {
	lead := leadAt("Phoenix", "AZ", 0)
	evt := eventAt(" phoenix ", "az", "page_view", time.Minute)

	locs := Aggregate([]models.Lead{lead}, []models.PageEvent{evt})

	require.Len(t, locs, 1)
	assert.Equal(t, 2, locs[0].Visitors)
	assert.Equal(t, 1, locs[0].Leads)
	assert.Equal(t, 1, locs[0].Sessions)
	// Display fields come from the first record for the key.
	assert.Equal(t, "Phoenix", locs[0].City)
}

func TestAggregateSortsByVisitorsDescending(t *testing.T) {
	leads := []models.Lead{
		leadAt("Phoenix", "AZ", 0),
		leadAt("Tampa", "FL", 0),
		leadAt("Tampa", "FL", time.Minute),
	}

	locs := Aggregate(leads, nil)

	require.Len(t, locs, 2)
	assert.Equal(t, "Tampa", locs[0].City)
	assert.Equal(t, "Phoenix", locs[1].City)
}

func TestAggregateBoundedCounters(t *testing.T) {
	leads := []models.Lead{
		leadAt("Phoenix", "AZ", 0),
		leadAt("Phoenix", "AZ", time.Minute),
	}
	events := []models.PageEvent{
		eventAt("Phoenix", "AZ", "page_view", 0),
		eventAt("Phoenix", "AZ", "heartbeat", time.Minute),
	}

	locs := Aggregate(leads, events)

	require.Len(t, locs, 1)
	assert.LessOrEqual(t, locs[0].Leads, len(leads))
	assert.LessOrEqual(t, locs[0].Sessions, 1) // only one page_view
	assert.Equal(t, 4, locs[0].Visitors)
}
