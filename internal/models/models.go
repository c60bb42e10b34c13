// Package models holds the row types shared across the aggregation and sync layers.
package models

import "time"

// PageEvent is one recorded visitor action. Immutable once created; rows
// arrive either from a bulk query or one at a time over the live feed.
type PageEvent struct {
	ID          string         `json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	SessionID   string         `json:"session_id"`
	EventType   string         `json:"event_type"`
	EventData   map[string]any `json:"event_data,omitempty"`
	UTMSource   string         `json:"utm_source,omitempty"`
	UTMMedium   string         `json:"utm_medium,omitempty"`
	UTMCampaign string         `json:"utm_campaign,omitempty"`
	UTMTerm     string         `json:"utm_term,omitempty"`
	GCLID       string         `json:"gclid,omitempty"`
	Referrer    string         `json:"referrer,omitempty"`
	GeoCity     string         `json:"geo_city,omitempty"`
	GeoState    string         `json:"geo_state,omitempty"`
	GeoLat      *float64       `json:"geo_lat,omitempty"`
	GeoLng      *float64       `json:"geo_lng,omitempty"`
	DeviceType  string         `json:"device_type,omitempty"`
}

// Lead is one captured conversion record. Only Status changes after
// capture, and that transition happens in the CRM, not here.
type Lead struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone,omitempty"`
	Treatment   string    `json:"treatment,omitempty"`
	MatchScore  *int      `json:"match_score,omitempty"`
	Status      string    `json:"status"`
	TimeOnPage  int       `json:"time_on_page,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	UTMSource   string    `json:"utm_source,omitempty"`
	UTMMedium   string    `json:"utm_medium,omitempty"`
	UTMCampaign string    `json:"utm_campaign,omitempty"`
	UTMTerm     string    `json:"utm_term,omitempty"`
	GCLID       string    `json:"gclid,omitempty"`
	GeoCity     string    `json:"geo_city,omitempty"`
	GeoState    string    `json:"geo_state,omitempty"`
	DeviceType  string    `json:"device_type,omitempty"`
}

// Converted reports whether the lead has moved past intake. Status "new"
// is the sole non-converted state; every other value, including a blank
// one from the notification path, counts as engaged.
func (l Lead) Converted() bool {
	return l.Status != "new"
}

// Clinic is an outreach prospect as stored in the CRM.
type Clinic struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Type             string     `json:"type,omitempty"`
	City             string     `json:"city,omitempty"`
	State            string     `json:"state,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	Email            string     `json:"email,omitempty"`
	EmailVerified    bool       `json:"email_verified"`
	Rating           float64    `json:"rating"`
	ReviewCount      int        `json:"review_count"`
	Services         []string   `json:"services,omitempty"`
	MarketID         string     `json:"market_id,omitempty"`
	Converted        bool       `json:"converted"`
	LastOutreachDate *time.Time `json:"last_outreach_date,omitempty"`
}

// Market is a target metro with its demographic profile.
type Market struct {
	ID             string  `json:"id"`
	City           string  `json:"city"`
	State          string  `json:"state"`
	AffluenceScore float64 `json:"affluence_score"`
	MedianIncome   int     `json:"median_income"`
	Population     int     `json:"population"`
}

// Contact is a person attached to a clinic.
type Contact struct {
	ID       string `json:"id"`
	ClinicID string `json:"clinic_id"`
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Activity is one outreach touch against a clinic.
type Activity struct {
	ID        string    `json:"id"`
	ClinicID  string    `json:"clinic_id"`
	Kind      string    `json:"kind"` // email, call, response, meeting
	Opened    bool      `json:"opened"`
	CreatedAt time.Time `json:"created_at"`
}
