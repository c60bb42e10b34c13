// Package live maintains the bounded, recency-ordered table of active
// visitor sessions shown on the dashboard.
package live

import (
	"sort"
	"time"

	"github.com/novalyte/vantage/internal/models"
)

const (
	// ActiveWindow is how far back the bulk seed looks for activity.
	ActiveWindow = 5 * time.Minute
	// MaxSessions caps the table; the least recently updated entries
	// past the cap are silently dropped.
	MaxSessions = 30
)

// Session is one active visitor. Updated in place as events arrive;
// never explicitly deleted, only evicted past the cap.
type Session struct {
	SessionID     string    `json:"session_id"`
	LastEvent     string    `json:"last_event"`
	LastEventTime time.Time `json:"last_event_time"`
	Device        string    `json:"device,omitempty"`
	City          string    `json:"city,omitempty"`
	State         string    `json:"state,omitempty"`
	Source        string    `json:"source"`
	EventsCount   int       `json:"events_count"`
}

// Seed rebuilds the table from a bulk event batch: events inside the
// trailing window are grouped by session, the newest event in each group
// supplies the displayed state, and the group size becomes the event
// count. Result is sorted newest-first and capped.
func Seed(events []models.PageEvent, now time.Time) []Session {
	cutoff := now.Add(-ActiveWindow)

	type group struct {
		newest models.PageEvent
		count  int
	}
	groups := make(map[string]*group)
	var order []string

	for _, e := range events {
		if e.CreatedAt.Before(cutoff) {
			continue
		}
		g, ok := groups[e.SessionID]
		if !ok {
			groups[e.SessionID] = &group{newest: e, count: 1}
			order = append(order, e.SessionID)
			continue
		}
		g.count++
		if e.CreatedAt.After(g.newest.CreatedAt) {
			g.newest = e
		}
	}

	sessions := make([]Session, 0, len(order))
	for _, id := range order {
		g := groups[id]
		sessions = append(sessions, Session{
			SessionID:     id,
			LastEvent:     g.newest.EventType,
			LastEventTime: g.newest.CreatedAt,
			Device:        g.newest.DeviceType,
			City:          g.newest.GeoCity,
			State:         g.newest.GeoState,
			Source:        liveSource(g.newest),
			EventsCount:   g.count,
		})
	}

	return trim(sessions)
}

// Apply folds one live event into the table: a known session is updated
// in place (other fields preserved), an unknown one is prepended. The
// table is then re-sorted and capped. Callers must apply events one at
// a time in arrival order.
func Apply(current []Session, event models.PageEvent) []Session {
	updated := false
	for i := range current {
		if current[i].SessionID == event.SessionID {
			current[i].LastEvent = event.EventType
			current[i].LastEventTime = event.CreatedAt
			current[i].EventsCount++
			updated = true
			break
		}
	}

	if !updated {
		entry := Session{
			SessionID:     event.SessionID,
			LastEvent:     event.EventType,
			LastEventTime: event.CreatedAt,
			Device:        event.DeviceType,
			City:          event.GeoCity,
			State:         event.GeoState,
			Source:        liveSource(event),
			EventsCount:   1,
		}
		current = append([]Session{entry}, current...)
	}

	return trim(current)
}

// liveSource is the feed's cheap channel label: a click id means paid
// search, otherwise the raw utm_source stands in, defaulting to Organic.
func liveSource(e models.PageEvent) string {
	if e.GCLID != "" {
		return "Google Ads"
	}
	if e.UTMSource != "" {
		return e.UTMSource
	}
	return "Organic"
}

func trim(sessions []Session) []Session {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastEventTime.After(sessions[j].LastEventTime)
	})
	if len(sessions) > MaxSessions {
		sessions = sessions[:MaxSessions]
	}
	return sessions
}
