// Package store is the typed query surface over the backend tables. The
// dashboard and the sync job depend on the Store interface, never on the
// shared handle directly, so a view can own (and mock) its data access.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/novalyte/vantage/internal/logging"
	"github.com/novalyte/vantage/internal/models"
)

// Default fetch caps; the in-memory batches never grow past these.
const (
	DefaultEventLimit = 500
	DefaultLeadLimit  = 1000
)

// Filter narrows a bulk fetch. A zero Since means no lower bound; a zero
// Limit applies the per-table default.
type Filter struct {
	Since time.Time
	Limit int
}

// Store is the data-access surface the aggregation layer consumes.
type Store interface {
	QueryEvents(ctx context.Context, f Filter) ([]models.PageEvent, error)
	QueryLeads(ctx context.Context, f Filter) ([]models.Lead, error)
	InsertEvent(ctx context.Context, e models.PageEvent) error
	InsertLead(ctx context.Context, l models.Lead) error
}

// SnapshotStore adds the full-table reads the warehouse sync needs.
type SnapshotStore interface {
	Store
	Clinics(ctx context.Context) ([]models.Clinic, error)
	Markets(ctx context.Context) ([]models.Market, error)
	Contacts(ctx context.Context) ([]models.Contact, error)
	Activities(ctx context.Context) ([]models.Activity, error)
}

// PG implements SnapshotStore over a Postgres handle.
type PG struct {
	db *sql.DB
}

// New wraps an open handle.
func New(db *sql.DB) *PG {
	return &PG{db: db}
}

// QueryEvents returns page events newer than the filter bound, newest
// first. Callers rely on that order for first-seen attribution.
func (s *PG) QueryEvents(ctx context.Context, f Filter) ([]models.PageEvent, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, session_id, event_type, event_data,
		       utm_source, utm_medium, utm_campaign, utm_term, gclid, referrer,
		       geo_city, geo_state, geo_lat, geo_lng, device_type
		FROM page_events
		WHERE created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2
	`, f.Since, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	events := make([]models.PageEvent, 0, limit)
	for rows.Next() {
		var (
			e       models.PageEvent
			rawData []byte
			source, medium, campaign, term, gclid, referrer,
			city, state, device sql.NullString
			lat, lng sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.SessionID, &e.EventType, &rawData,
			&source, &medium, &campaign, &term, &gclid, &referrer,
			&city, &state, &lat, &lng, &device); err != nil {
			return nil, err
		}

		e.UTMSource = source.String
		e.UTMMedium = medium.String
		e.UTMCampaign = campaign.String
		e.UTMTerm = term.String
		e.GCLID = gclid.String
		e.Referrer = referrer.String
		e.GeoCity = city.String
		e.GeoState = state.String
		e.DeviceType = device.String
		if lat.Valid {
			v := lat.Float64
			e.GeoLat = &v
		}
		if lng.Valid {
			v := lng.Float64
			e.GeoLng = &v
		}
		if len(rawData) > 0 {
			if err := json.Unmarshal(rawData, &e.EventData); err != nil {
				// A malformed payload degrades to an empty bag, never an error.
				logging.L().Warn("dropping malformed event_data", "event_id", e.ID, "error", err)
				e.EventData = nil
			}
		}

		events = append(events, e)
	}
	return events, rows.Err()
}

// QueryLeads returns leads newer than the filter bound, newest first.
func (s *PG) QueryLeads(ctx context.Context, f Filter) ([]models.Lead, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLeadLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, name, email, phone, treatment, match_score, status,
		       time_on_page, session_id, utm_source, utm_medium, utm_campaign,
		       utm_term, gclid, geo_city, geo_state, device_type
		FROM leads
		WHERE created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2
	`, f.Since, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	leads := make([]models.Lead, 0, limit)
	for rows.Next() {
		var (
			l models.Lead
			name, email, phone, treatment, status, session,
			source, medium, campaign, term, gclid, city, state,
			device sql.NullString
			matchScore, timeOnPage sql.NullInt64
		)
		if err := rows.Scan(&l.ID, &l.CreatedAt, &name, &email, &phone, &treatment,
			&matchScore, &status, &timeOnPage, &session, &source, &medium,
			&campaign, &term, &gclid, &city, &state, &device); err != nil {
			return nil, err
		}

		l.Name = name.String
		l.Email = email.String
		l.Phone = phone.String
		l.Treatment = treatment.String
		l.Status = status.String
		l.SessionID = session.String
		l.UTMSource = source.String
		l.UTMMedium = medium.String
		l.UTMCampaign = campaign.String
		l.UTMTerm = term.String
		l.GCLID = gclid.String
		l.GeoCity = city.String
		l.GeoState = state.String
		l.DeviceType = device.String
		if matchScore.Valid {
			v := int(matchScore.Int64)
			l.MatchScore = &v
		}
		if timeOnPage.Valid {
			l.TimeOnPage = int(timeOnPage.Int64)
		}

		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// InsertEvent persists one tracked event. The notify trigger fans it out
// to live subscribers.
func (s *PG) InsertEvent(ctx context.Context, e models.PageEvent) error {
	var rawData any
	if len(e.EventData) > 0 {
		encoded, err := json.Marshal(e.EventData)
		if err == nil {
			rawData = encoded
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO page_events (
			id, created_at, session_id, event_type, event_data,
			utm_source, utm_medium, utm_campaign, utm_term, gclid, referrer,
			geo_city, geo_state, geo_lat, geo_lng, device_type
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, e.ID, e.CreatedAt, e.SessionID, e.EventType, rawData,
		nullable(e.UTMSource), nullable(e.UTMMedium), nullable(e.UTMCampaign),
		nullable(e.UTMTerm), nullable(e.GCLID), nullable(e.Referrer),
		nullable(e.GeoCity), nullable(e.GeoState), e.GeoLat, e.GeoLng,
		nullable(e.DeviceType))
	return err
}

// InsertLead persists one captured lead. The notify trigger fans it out
// to live subscribers.
func (s *PG) InsertLead(ctx context.Context, l models.Lead) error {
	status := l.Status
	if status == "" {
		status = "new"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leads (
			id, created_at, name, email, phone, treatment, match_score, status,
			time_on_page, session_id, utm_source, utm_medium, utm_campaign,
			utm_term, gclid, geo_city, geo_state, device_type
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, l.ID, l.CreatedAt, nullable(l.Name), nullable(l.Email), nullable(l.Phone),
		nullable(l.Treatment), l.MatchScore, status, l.TimeOnPage,
		nullable(l.SessionID), nullable(l.UTMSource), nullable(l.UTMMedium),
		nullable(l.UTMCampaign), nullable(l.UTMTerm), nullable(l.GCLID),
		nullable(l.GeoCity), nullable(l.GeoState), nullable(l.DeviceType))
	return err
}

// Clinics reads the full clinics table.
func (s *PG) Clinics(ctx context.Context) ([]models.Clinic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, city, state, phone, email, email_verified,
		       rating, review_count, services, market_id, converted, last_outreach_date
		FROM clinics
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var clinics []models.Clinic
	for rows.Next() {
		var (
			c                                models.Clinic
			ctype, city, state, phone, email sql.NullString
			marketID                         sql.NullString
			lastOutreach                     sql.NullTime
			services                         pq.StringArray
		)
		if err := rows.Scan(&c.ID, &c.Name, &ctype, &city, &state, &phone, &email,
			&c.EmailVerified, &c.Rating, &c.ReviewCount, &services, &marketID,
			&c.Converted, &lastOutreach); err != nil {
			return nil, err
		}
		c.Type = ctype.String
		c.City = city.String
		c.State = state.String
		c.Phone = phone.String
		c.Email = email.String
		c.MarketID = marketID.String
		c.Services = services
		if lastOutreach.Valid {
			t := lastOutreach.Time
			c.LastOutreachDate = &t
		}
		clinics = append(clinics, c)
	}
	return clinics, rows.Err()
}

// Markets reads the full markets table.
func (s *PG) Markets(ctx context.Context) ([]models.Market, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, city, state, affluence_score, median_income, population
		FROM markets
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var markets []models.Market
	for rows.Next() {
		var m models.Market
		if err := rows.Scan(&m.ID, &m.City, &m.State, &m.AffluenceScore,
			&m.MedianIncome, &m.Population); err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// Contacts reads the full contacts table.
func (s *PG) Contacts(ctx context.Context) ([]models.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, clinic_id, name, role, email, phone
		FROM contacts
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []models.Contact
	for rows.Next() {
		var (
			c                  models.Contact
			role, email, phone sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.ClinicID, &c.Name, &role, &email, &phone); err != nil {
			return nil, err
		}
		c.Role = role.String
		c.Email = email.String
		c.Phone = phone.String
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// Activities reads the full activities table.
func (s *PG) Activities(ctx context.Context) ([]models.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, clinic_id, kind, opened, created_at
		FROM activities
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var activities []models.Activity
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.ClinicID, &a.Kind, &a.Opened, &a.CreatedAt); err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
