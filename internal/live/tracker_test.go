package live

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novalyte/vantage/internal/models"
)

var now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func evt(session, eventType string, age time.Duration) models.PageEvent {
	return models.PageEvent{
		ID:         session + "-" + eventType,
		SessionID:  session,
		EventType:  eventType,
		CreatedAt:  now.Add(-age),
		DeviceType: "mobile",
		GeoCity:    "Phoenix",
		GeoState:   "AZ",
	}
}

func TestSeedFiltersToActiveWindow(t *testing.T) {
	events := []models.PageEvent{
		evt("fresh", "page_view", time.Minute),
		evt("stale", "page_view", 6*time.Minute),
	}

	sessions := Seed(events, now)

	require.Len(t, sessions, 1)
	assert.Equal(t, "fresh", sessions[0].SessionID)
}

func TestSeedKeepsNewestEventPerSession(t *testing.T) {
	events := []models.PageEvent{
		evt("s1", "page_view", 4*time.Minute),
		evt("s1", "quiz_start", 2*time.Minute),
		evt("s1", "scroll_depth", 3*time.Minute),
	}

	sessions := Seed(events, now)

	require.Len(t, sessions, 1)
	assert.Equal(t, "quiz_start", sessions[0].LastEvent)
	assert.Equal(t, now.Add(-2*time.Minute), sessions[0].LastEventTime)
	assert.Equal(t, 3, sessions[0].EventsCount)
}

func TestSeedSortsDescendingAndDeduplicates(t *testing.T) {
	events := []models.PageEvent{
		evt("a", "page_view", 3*time.Minute),
		evt("b", "page_view", time.Minute),
		evt("c", "page_view", 2*time.Minute),
		evt("a", "heartbeat", 90*time.Second),
	}

	sessions := Seed(events, now)

	require.Len(t, sessions, 3)
	assert.Equal(t, "b", sessions[0].SessionID)
	assert.Equal(t, "a", sessions[1].SessionID)
	assert.Equal(t, "c", sessions[2].SessionID)

	seen := make(map[string]bool)
	for i, s := range sessions {
		assert.False(t, seen[s.SessionID], "duplicate session %s", s.SessionID)
		seen[s.SessionID] = true
		if i > 0 {
			assert.False(t, s.LastEventTime.After(sessions[i-1].LastEventTime))
		}
	}
}

func TestSeedCapsAtThirtyDroppingOldest(t *testing.T) {
	var events []models.PageEvent
	for i := 0; i < 31; i++ {
		events = append(events, evt(fmt.Sprintf("s%02d", i), "page_view", time.Duration(i)*time.Second))
	}

	sessions := Seed(events, now)

	require.Len(t, sessions, MaxSessions)
	for _, s := range sessions {
		assert.NotEqual(t, "s30", s.SessionID, "the single oldest session should be dropped")
	}
	assert.Equal(t, "s00", sessions[0].SessionID)
}

func TestApplyUpdatesKnownSessionInPlace(t *testing.T) {
	current := Seed([]models.PageEvent{evt("s1", "page_view", 2*time.Minute)}, now)

	next := evt("s1", "quiz_complete", time.Minute)
	next.DeviceType = "desktop" // must NOT replace the existing device
	updated := Apply(current, next)

	require.Len(t, updated, 1)
	assert.Equal(t, "quiz_complete", updated[0].LastEvent)
	assert.Equal(t, 2, updated[0].EventsCount)
	assert.Equal(t, "mobile", updated[0].Device)
	assert.Equal(t, "Phoenix", updated[0].City)
}

func TestApplyPrependsUnknownSession(t *testing.T) {
	current := Seed([]models.PageEvent{evt("s1", "page_view", 2*time.Minute)}, now)

	newcomer := evt("s2", "session_start", time.Minute)
	newcomer.GCLID = "abc"
	updated := Apply(current, newcomer)

	require.Len(t, updated, 2)
	assert.Equal(t, "s2", updated[0].SessionID)
	assert.Equal(t, 1, updated[0].EventsCount)
	assert.Equal(t, "Google Ads", updated[0].Source)
}

func TestApplySourceFallsBackToUTMThenOrganic(t *testing.T) {
	tagged := evt("s1", "page_view", time.Minute)
	tagged.UTMSource = "yelp"
	sessions := Apply(nil, tagged)
	require.Len(t, sessions, 1)
	assert.Equal(t, "yelp", sessions[0].Source)

	untagged := evt("s2", "page_view", time.Minute)
	sessions = Apply(sessions, untagged)
	require.Len(t, sessions, 2)
	assert.Equal(t, "Organic", sessions[0].Source)
}

func TestApplyEnforcesCap(t *testing.T) {
	var sessions []Session
	for i := 0; i < 35; i++ {
		sessions = Apply(sessions, evt(fmt.Sprintf("s%02d", i), "page_view", time.Duration(35-i)*time.Second))
	}

	require.Len(t, sessions, MaxSessions)
	assert.Equal(t, "s34", sessions[0].SessionID)
	for i := 1; i < len(sessions); i++ {
		assert.False(t, sessions[i].LastEventTime.After(sessions[i-1].LastEventTime))
	}
}
