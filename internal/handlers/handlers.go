// Package handlers holds the HTTP surface. Handlers stay thin: they
// parse the request, call into the view or a job, and shape the JSON.
package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/novalyte/vantage/internal/dashboard"
	"github.com/novalyte/vantage/internal/logging"
	"github.com/novalyte/vantage/internal/models"
	"github.com/novalyte/vantage/internal/realtime"
	"github.com/novalyte/vantage/internal/store"
	"github.com/novalyte/vantage/internal/warehouse"
)

// Handlers bundles the dependencies the HTTP layer needs.
type Handlers struct {
	View    *dashboard.View
	Store   store.Store
	Version string

	// PingDB reports backend liveness for /up.
	PingDB func() error

	// RunSync and RunScore execute the warehouse jobs; nil disables the
	// job endpoints with a 503.
	RunSync  func(ctx context.Context) error
	RunScore func(ctx context.Context) (warehouse.Result, error)
}

// queryDays reads the window parameter, defaulting to a week and
// clamping to the retention bounds.
func queryDays(c fiber.Ctx) int {
	return min(max(fiber.Query[int](c, "days", dashboard.DefaultWindowDays), 1), 90)
}

// HandleSnapshot returns the full dashboard state.
// GET /api/dashboard/snapshot
func (h *Handlers) HandleSnapshot(c fiber.Ctx) error {
	return c.JSON(h.View.Snapshot(queryDays(c)))
}

// HandleAttribution returns the source -> campaign -> keyword tree.
// GET /api/dashboard/attribution
func (h *Handlers) HandleAttribution(c fiber.Ctx) error {
	snap := h.View.Snapshot(queryDays(c))
	return c.JSON(snap.Attribution)
}

// HandleMap returns the per-city location records.
// GET /api/dashboard/map
func (h *Handlers) HandleMap(c fiber.Ctx) error {
	snap := h.View.Snapshot(queryDays(c))
	return c.JSON(fiber.Map{"locations": snap.Locations})
}

// HandleLive returns the active-session table.
// GET /api/dashboard/live
func (h *Handlers) HandleLive(c fiber.Ctx) error {
	snap := h.View.Snapshot(queryDays(c))
	return c.JSON(fiber.Map{"sessions": snap.Live})
}

// HandleRollups returns the summary metrics.
// GET /api/dashboard/rollups
func (h *Handlers) HandleRollups(c fiber.Ctx) error {
	snap := h.View.Snapshot(queryDays(c))
	return c.JSON(snap.Rollups)
}

// HandleTrack ingests one traffic event. Persisted events reach the
// dashboard through the insert trigger; transient ones (?transient=1)
// are only broadcast on the traffic channel and never stored.
// POST /api/track
func (h *Handlers) HandleTrack(c fiber.Ctx) error {
	var payload realtime.TrafficPayload
	if err := c.Bind().Body(&payload); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}
	if payload.SessionID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "session_id is required"})
	}

	if payload.ID != "" {
		if _, err := uuid.Parse(payload.ID); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "id must be a uuid"})
		}
	}
	event := payload.Event(time.Now())

	if fiber.Query[bool](c, "transient", false) {
		realtime.NotifyTraffic(c.Context(), payload)
		return c.Status(202).JSON(fiber.Map{"success": true, "transient": true})
	}

	if err := h.Store.InsertEvent(c.Context(), event); err != nil {
		logging.L().Error("event insert failed", "error", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to record event"})
	}
	return c.Status(202).JSON(fiber.Map{"success": true, "id": event.ID})
}

// LeadPayload is the captured-form body for POST /api/leads.
type LeadPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Treatment   string `json:"treatment"`
	MatchScore  *int   `json:"match_score"`
	TimeOnPage  int    `json:"time_on_page"`
	SessionID   string `json:"session_id"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	UTMTerm     string `json:"utm_term"`
	GCLID       string `json:"gclid"`
	GeoCity     string `json:"geo_city"`
	GeoState    string `json:"geo_state"`
	DeviceType  string `json:"device_type"`
}

// HandleLead ingests one captured lead. The insert trigger carries it
// to the dashboard, so the handler only persists.
// POST /api/leads
func (h *Handlers) HandleLead(c fiber.Ctx) error {
	var payload LeadPayload
	if err := c.Bind().Body(&payload); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}
	if payload.Email == "" && payload.Phone == "" {
		return c.Status(400).JSON(fiber.Map{"error": "email or phone is required"})
	}

	if payload.ID != "" {
		if _, err := uuid.Parse(payload.ID); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "id must be a uuid"})
		}
	}

	lead := models.Lead{
		ID:          payload.ID,
		CreatedAt:   time.Now(),
		Name:        payload.Name,
		Email:       payload.Email,
		Phone:       payload.Phone,
		Treatment:   payload.Treatment,
		MatchScore:  payload.MatchScore,
		TimeOnPage:  payload.TimeOnPage,
		SessionID:   payload.SessionID,
		UTMSource:   payload.UTMSource,
		UTMMedium:   payload.UTMMedium,
		UTMCampaign: payload.UTMCampaign,
		UTMTerm:     payload.UTMTerm,
		GCLID:       payload.GCLID,
		GeoCity:     payload.GeoCity,
		GeoState:    payload.GeoState,
		DeviceType:  payload.DeviceType,
	}
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}

	if err := h.Store.InsertLead(c.Context(), lead); err != nil {
		logging.L().Error("lead insert failed", "error", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to record lead"})
	}
	return c.Status(202).JSON(fiber.Map{"success": true, "id": lead.ID})
}

// HandleSyncJob triggers a warehouse sync.
// POST /api/jobs/sync
func (h *Handlers) HandleSyncJob(c fiber.Ctx) error {
	if h.RunSync == nil {
		return c.Status(503).JSON(fiber.Map{"success": false, "error": "warehouse not configured"})
	}
	if err := h.RunSync(c.Context()); err != nil {
		logging.L().Error("warehouse sync failed", "error", err)
		return c.Status(500).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true})
}

// HandlePropensityJob triggers the scoring job.
// POST /api/jobs/propensity
func (h *Handlers) HandlePropensityJob(c fiber.Ctx) error {
	if h.RunScore == nil {
		return c.Status(503).JSON(fiber.Map{"success": false, "error": "warehouse not configured"})
	}
	result, err := h.RunScore(c.Context())
	if err != nil {
		logging.L().Error("propensity scoring failed", "error", err)
		return c.Status(500).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	return c.JSON(result)
}

// HandleIndex describes the service.
// GET /
func (h *Handlers) HandleIndex(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":    "vantage",
		"version": h.Version,
		"status":  "running",
	})
}

// HandleHealth reports process liveness.
// GET /health
func (h *Handlers) HandleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"version": h.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleUp is the deep health check used by container orchestration:
// it fails when the backend is unreachable.
// GET /up
func (h *Handlers) HandleUp(c fiber.Ctx) error {
	if h.PingDB != nil {
		if err := h.PingDB(); err != nil {
			return c.Status(503).JSON(fiber.Map{"status": "down", "error": err.Error()})
		}
	}
	return c.JSON(fiber.Map{"status": "up"})
}

// HandleVersion reports the build version.
// GET /api/version
func (h *Handlers) HandleVersion(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"version": h.Version})
}
