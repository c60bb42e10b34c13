package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/novalyte/vantage/internal/logging"
	"github.com/novalyte/vantage/internal/models"
	"github.com/novalyte/vantage/internal/store"
)

// leadSyncLimit bounds the patient_leads load. The warehouse copy is a
// rebuilt snapshot, not an incremental feed.
const leadSyncLimit = 10000

// ClinicRow is one denormalized warehouse clinic: the CRM record joined
// to its market demographics and its accumulated outreach counters.
type ClinicRow struct {
	ID               string
	Name             string
	Type             string
	City             string
	State            string
	Phone            string
	Email            string
	EmailVerified    bool
	Rating           float64
	ReviewCount      int
	Services         []string
	ServiceCount     int
	ContactCount     int
	AffluenceScore   float64
	MedianIncome     int
	MarketPopulation int
	OutreachCount    int
	ResponseCount    int
	CallsCount       int
	EmailsSent       int
	EmailsOpened     int
	EmailOpenRate    float64
	ResponseRate     float64
	Converted        bool
	LastOutreachDate *time.Time
}

// Syncer rebuilds the warehouse copy from the backend snapshot tables.
type Syncer struct {
	store   store.SnapshotStore
	conn    Conn
	nowFunc func() time.Time
}

// NewSyncer builds a syncer over the given backend and warehouse
// connections.
func NewSyncer(s store.SnapshotStore, conn Conn) *Syncer {
	return &Syncer{store: s, conn: conn, nowFunc: time.Now}
}

// Sync performs a full rebuild: ensure schema, truncate and bulk-load
// clinics and patient_leads, then refresh the market_intelligence
// aggregation. Not incremental; every run replaces the prior copy.
func (s *Syncer) Sync(ctx context.Context) error {
	start := s.nowFunc()

	if err := s.ensureSchema(ctx); err != nil {
		return fmt.Errorf("ensure warehouse schema: %w", err)
	}

	clinics, err := s.store.Clinics(ctx)
	if err != nil {
		return fmt.Errorf("read clinics: %w", err)
	}
	markets, err := s.store.Markets(ctx)
	if err != nil {
		return fmt.Errorf("read markets: %w", err)
	}
	contacts, err := s.store.Contacts(ctx)
	if err != nil {
		return fmt.Errorf("read contacts: %w", err)
	}
	activities, err := s.store.Activities(ctx)
	if err != nil {
		return fmt.Errorf("read activities: %w", err)
	}
	leads, err := s.store.QueryLeads(ctx, store.Filter{Limit: leadSyncLimit})
	if err != nil {
		return fmt.Errorf("read leads: %w", err)
	}

	rows := BuildClinicRows(clinics, markets, contacts, activities)

	if err := s.loadClinics(ctx, rows); err != nil {
		return fmt.Errorf("load clinics: %w", err)
	}
	if err := s.loadLeads(ctx, leads); err != nil {
		return fmt.Errorf("load patient_leads: %w", err)
	}
	if err := s.refreshMarketIntelligence(ctx); err != nil {
		return fmt.Errorf("refresh market_intelligence: %w", err)
	}

	logging.L().Info("warehouse sync complete",
		"clinics", len(rows),
		"leads", len(leads),
		"duration", s.nowFunc().Sub(start).String())
	return nil
}

// BuildClinicRows joins each clinic to its market demographics and
// folds the activity log into per-clinic counters. Activity kinds
// outside the known vocabulary still count toward outreach.
func BuildClinicRows(clinics []models.Clinic, markets []models.Market,
	contacts []models.Contact, activities []models.Activity) []ClinicRow {

	marketsByID := make(map[string]models.Market, len(markets))
	for _, m := range markets {
		marketsByID[m.ID] = m
	}

	contactCounts := make(map[string]int)
	for _, c := range contacts {
		contactCounts[c.ClinicID]++
	}

	type tally struct {
		outreach, responses, calls, emailsSent, emailsOpened int
	}
	tallies := make(map[string]*tally)
	for _, a := range activities {
		t, ok := tallies[a.ClinicID]
		if !ok {
			t = &tally{}
			tallies[a.ClinicID] = t
		}
		switch a.Kind {
		case "response":
			t.responses++
		case "call":
			t.calls++
			t.outreach++
		case "email":
			t.emailsSent++
			if a.Opened {
				t.emailsOpened++
			}
			t.outreach++
		default:
			t.outreach++
		}
	}

	rows := make([]ClinicRow, 0, len(clinics))
	for _, c := range clinics {
		row := ClinicRow{
			ID:               c.ID,
			Name:             c.Name,
			Type:             c.Type,
			City:             c.City,
			State:            c.State,
			Phone:            c.Phone,
			Email:            c.Email,
			EmailVerified:    c.EmailVerified,
			Rating:           c.Rating,
			ReviewCount:      c.ReviewCount,
			Services:         c.Services,
			ServiceCount:     len(c.Services),
			ContactCount:     contactCounts[c.ID],
			Converted:        c.Converted,
			LastOutreachDate: c.LastOutreachDate,
		}
		if m, ok := marketsByID[c.MarketID]; ok {
			row.AffluenceScore = m.AffluenceScore
			row.MedianIncome = m.MedianIncome
			row.MarketPopulation = m.Population
		}
		if t, ok := tallies[c.ID]; ok {
			row.OutreachCount = t.outreach
			row.ResponseCount = t.responses
			row.CallsCount = t.calls
			row.EmailsSent = t.emailsSent
			row.EmailsOpened = t.emailsOpened
			if t.emailsSent > 0 {
				row.EmailOpenRate = float64(t.emailsOpened) / float64(t.emailsSent)
			}
			if t.outreach > 0 {
				row.ResponseRate = float64(t.responses) / float64(t.outreach)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func (s *Syncer) loadClinics(ctx context.Context, rows []ClinicRow) error {
	if err := s.conn.Exec(ctx, "TRUNCATE TABLE clinics"); err != nil {
		return err
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO clinics (
			clinic_id, name, type, city, state, phone, email, email_verified,
			rating, review_count, services, service_count, contact_count,
			affluence_score, median_income, market_population,
			outreach_count, response_count, calls_count,
			emails_sent, emails_opened, email_open_rate, response_rate,
			converted, last_outreach_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}

	for _, r := range rows {
		if err := batch.Append(
			r.ID, r.Name, r.Type, r.City, r.State, r.Phone, r.Email, r.EmailVerified,
			r.Rating, uint32(r.ReviewCount), r.Services, uint32(r.ServiceCount), uint32(r.ContactCount),
			r.AffluenceScore, int64(r.MedianIncome), int64(r.MarketPopulation),
			uint32(r.OutreachCount), uint32(r.ResponseCount), uint32(r.CallsCount),
			uint32(r.EmailsSent), uint32(r.EmailsOpened), r.EmailOpenRate, r.ResponseRate,
			r.Converted, r.LastOutreachDate,
		); err != nil {
			return err
		}
	}
	return batch.Send()
}

func (s *Syncer) loadLeads(ctx context.Context, leads []models.Lead) error {
	if err := s.conn.Exec(ctx, "TRUNCATE TABLE patient_leads"); err != nil {
		return err
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO patient_leads (
			lead_id, created_at, treatment, status, geo_city, geo_state,
			utm_source, utm_medium, utm_campaign, gclid, device_type
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}

	for _, l := range leads {
		if err := batch.Append(
			l.ID, l.CreatedAt, l.Treatment, l.Status, l.GeoCity, l.GeoState,
			l.UTMSource, l.UTMMedium, l.UTMCampaign, l.GCLID, l.DeviceType,
		); err != nil {
			return err
		}
	}
	return batch.Send()
}

// refreshMarketIntelligence rebuilds the per-market supply/demand join.
// Supply comes from the clinics copy, demand from the trailing 30 days
// of patient_leads, matched on normalized city/state. The full outer
// join keeps markets with clinics but no leads and markets with leads
// but no tracked clinics.
func (s *Syncer) refreshMarketIntelligence(ctx context.Context) error {
	if err := s.conn.Exec(ctx, "TRUNCATE TABLE market_intelligence"); err != nil {
		return err
	}

	return s.conn.Exec(ctx, `
		INSERT INTO market_intelligence
			(city, state, clinic_count, avg_affluence, leads_30d, top_treatment, opportunity_score, computed_at)
		SELECT
			coalesce(supply.city, demand.city) AS city,
			coalesce(supply.state, demand.state) AS state,
			coalesce(supply.clinic_count, 0) AS clinic_count,
			coalesce(supply.avg_affluence, 0) AS avg_affluence,
			coalesce(demand.leads_30d, 0) AS leads_30d,
			coalesce(demand.top_treatment, '') AS top_treatment,
			coalesce(demand.leads_30d, 0) * coalesce(supply.avg_affluence, 0)
				/ greatest(coalesce(supply.clinic_count, 0), 1) AS opportunity_score,
			now() AS computed_at
		FROM (
			SELECT
				lowerUTF8(trim(city)) AS city,
				lowerUTF8(trim(state)) AS state,
				count() AS clinic_count,
				avg(affluence_score) AS avg_affluence
			FROM clinics
			WHERE city != ''
			GROUP BY city, state
		) AS supply
		FULL OUTER JOIN (
			SELECT
				lowerUTF8(trim(geo_city)) AS city,
				lowerUTF8(trim(geo_state)) AS state,
				count() AS leads_30d,
				topK(1)(treatment)[1] AS top_treatment
			FROM patient_leads
			WHERE created_at >= now() - INTERVAL 30 DAY
			  AND geo_city != ''
			GROUP BY city, state
		) AS demand
		ON supply.city = demand.city AND supply.state = demand.state
	`)
}

func (s *Syncer) ensureSchema(ctx context.Context) error {
	statements := []string{`
		CREATE TABLE IF NOT EXISTS clinics (
			clinic_id String,
			name String,
			type String,
			city String,
			state String,
			phone String,
			email String,
			email_verified Bool,
			rating Float64,
			review_count UInt32,
			services Array(String),
			service_count UInt32,
			contact_count UInt32,
			affluence_score Float64,
			median_income Int64,
			market_population Int64,
			outreach_count UInt32,
			response_count UInt32,
			calls_count UInt32,
			emails_sent UInt32,
			emails_opened UInt32,
			email_open_rate Float64,
			response_rate Float64,
			converted Bool,
			last_outreach_date Nullable(DateTime64(3))
		) ENGINE = MergeTree ORDER BY clinic_id
	`, `
		CREATE TABLE IF NOT EXISTS patient_leads (
			lead_id String,
			created_at DateTime64(3),
			treatment String,
			status String,
			geo_city String,
			geo_state String,
			utm_source String,
			utm_medium String,
			utm_campaign String,
			gclid String,
			device_type String
		) ENGINE = MergeTree ORDER BY (created_at, lead_id)
	`, `
		CREATE TABLE IF NOT EXISTS market_intelligence (
			city String,
			state String,
			clinic_count UInt64,
			avg_affluence Float64,
			leads_30d UInt64,
			top_treatment String,
			opportunity_score Float64,
			computed_at DateTime
		) ENGINE = MergeTree ORDER BY (state, city)
	`, `
		CREATE TABLE IF NOT EXISTS clinic_scores (
			clinic_id String,
			propensity_score Float64,
			propensity_tier LowCardinality(String),
			mode LowCardinality(String),
			scored_at DateTime
		) ENGINE = MergeTree ORDER BY clinic_id
	`}

	for _, stmt := range statements {
		if err := s.conn.Exec(ctx, strings.TrimSpace(stmt)); err != nil {
			return err
		}
	}
	return nil
}
