package handlers

import (
	"github.com/gofiber/fiber/v3"
)

// Register mounts every route on the app. ws carries the upgraded
// websocket handler for the live feed; nil skips it.
func (h *Handlers) Register(app *fiber.App, ws fiber.Handler) {
	app.Get("/", h.HandleIndex)
	app.Get("/health", h.HandleHealth)
	app.Get("/up", h.HandleUp)
	app.Get("/api/version", h.HandleVersion)

	app.Get("/api/dashboard/snapshot", h.HandleSnapshot)
	app.Get("/api/dashboard/attribution", h.HandleAttribution)
	app.Get("/api/dashboard/map", h.HandleMap)
	app.Get("/api/dashboard/live", h.HandleLive)
	app.Get("/api/dashboard/rollups", h.HandleRollups)

	app.Post("/api/track", h.HandleTrack)
	app.Post("/api/leads", h.HandleLead)
	app.Post("/api/jobs/sync", h.HandleSyncJob)
	app.Post("/api/jobs/propensity", h.HandlePropensityJob)

	if ws != nil {
		app.Get("/api/live/ws", ws)
	}
}
