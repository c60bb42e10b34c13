// Package dashboard owns the in-memory materialized view the HTTP
// layer serves. One goroutine owns all state; every mutation and read
// goes through its channel, which is what makes recomputation
// deterministic under concurrent feeds.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/novalyte/vantage/internal/attribution"
	"github.com/novalyte/vantage/internal/geo"
	"github.com/novalyte/vantage/internal/live"
	"github.com/novalyte/vantage/internal/logging"
	"github.com/novalyte/vantage/internal/models"
	"github.com/novalyte/vantage/internal/rollup"
	"github.com/novalyte/vantage/internal/store"
)

// DefaultWindowDays is the lookback used when a request does not pick
// its own window.
const DefaultWindowDays = 7

// ErrStopped is returned by Refresh once the run loop has exited.
var ErrStopped = errors.New("dashboard: view stopped")

// Broadcaster pushes live-feed frames to connected clients. *realtime.Hub
// satisfies it.
type Broadcaster interface {
	Broadcast([]byte)
}

// Rollups bundles the summary metrics computed from one pair of batches.
type Rollups struct {
	DeviceMix        rollup.DeviceMix        `json:"device_mix"`
	DeviceConversion rollup.DeviceConversion `json:"device_conversion"`
	Treatments       []rollup.NameCount      `json:"treatments"`
	Funnel           rollup.Funnel           `json:"funnel"`
	TopCities        []rollup.NameCount      `json:"top_cities"`
	TopStates        []rollup.NameCount      `json:"top_states"`
	ConversionRate   int                     `json:"conversion_rate"`
}

// Snapshot is a point-in-time copy of everything the dashboard renders.
// Safe to hold after return; nothing in it aliases view state.
type Snapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	WindowDays  int              `json:"window_days"`
	EventCount  int              `json:"event_count"`
	LeadCount   int              `json:"lead_count"`
	Attribution attribution.Tree `json:"attribution"`
	Locations   []geo.Location   `json:"locations"`
	Live        []live.Session   `json:"live_sessions"`
	Rollups     Rollups          `json:"rollups"`
}

type snapshotReq struct {
	days  int
	reply chan Snapshot
}

type refreshReq struct {
	reply chan error
}

// View is the aggregation loop handle. All exported methods are safe
// for concurrent use.
type View struct {
	store store.Store
	hub   Broadcaster

	events    chan models.PageEvent
	leads     chan models.Lead
	snapshots chan snapshotReq
	refreshes chan refreshReq

	// done closes when the run loop exits; requests racing shutdown
	// bail out on it instead of blocking on an orphaned channel.
	done chan struct{}

	// run-loop state, touched only by run()
	eventBatch []models.PageEvent
	leadBatch  []models.Lead
	liveTable  []live.Session

	nowFunc func() time.Time
}

// New builds a view over the store. hub may be nil when no websocket
// clients exist. Call Start to begin serving.
func New(s store.Store, hub Broadcaster) *View {
	return &View{
		store:     s,
		hub:       hub,
		events:    make(chan models.PageEvent, 256),
		leads:     make(chan models.Lead, 64),
		snapshots: make(chan snapshotReq),
		refreshes: make(chan refreshReq),
		done:      make(chan struct{}),
		nowFunc:   time.Now,
	}
}

// Start performs the initial load and launches the run loop. The loop
// exits when ctx is done.
func (v *View) Start(ctx context.Context) error {
	if err := v.reload(ctx); err != nil {
		return err
	}
	go v.run(ctx)
	return nil
}

// ApplyEvent folds one live event into the view. Never blocks the
// caller; under sustained overload the event is dropped and the next
// refresh reconciles.
func (v *View) ApplyEvent(e models.PageEvent) {
	select {
	case v.events <- e:
	default:
		logging.L().Warn("dropping live event", "session_id", e.SessionID)
	}
}

// ApplyLead folds one live lead into the view.
func (v *View) ApplyLead(l models.Lead) {
	select {
	case v.leads <- l:
	default:
		logging.L().Warn("dropping live lead", "lead_id", l.ID)
	}
}

// Refresh reloads both batches from the store and rebuilds the live
// table. Blocks until the reload finishes.
func (v *View) Refresh(ctx context.Context) error {
	req := refreshReq{reply: make(chan error, 1)}
	select {
	case v.refreshes <- req:
	case <-v.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-v.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot recomputes and returns the view over the trailing window.
// days outside 1..90 is clamped. After shutdown it returns an empty
// snapshot so in-flight requests can still complete.
func (v *View) Snapshot(days int) Snapshot {
	if days < 1 {
		days = DefaultWindowDays
	}
	if days > 90 {
		days = 90
	}
	req := snapshotReq{days: days, reply: make(chan Snapshot, 1)}
	select {
	case v.snapshots <- req:
	case <-v.done:
		return Snapshot{GeneratedAt: v.nowFunc(), WindowDays: days, Attribution: attribution.BuildTree(nil, nil)}
	}
	select {
	case snap := <-req.reply:
		return snap
	case <-v.done:
		return Snapshot{GeneratedAt: v.nowFunc(), WindowDays: days, Attribution: attribution.BuildTree(nil, nil)}
	}
}

// LiveFrame renders the current live table as the frame pushed to a
// newly connected websocket client.
func (v *View) LiveFrame() []byte {
	snap := v.Snapshot(DefaultWindowDays)
	return encodeLiveFrame(snap.Live)
}

func (v *View) run(ctx context.Context) {
	defer close(v.done)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-v.events:
			v.ingestEvent(e)
			v.broadcastLive()
		case l := <-v.leads:
			v.ingestLead(l)
		case req := <-v.refreshes:
			req.reply <- v.reload(ctx)
		case req := <-v.snapshots:
			req.reply <- v.snapshot(req.days)
		}
	}
}

// reload replaces both batches from the store. The store returns rows
// newest-first, which is the order every consumer expects.
func (v *View) reload(ctx context.Context) error {
	since := v.nowFunc().AddDate(0, 0, -90)

	events, err := v.store.QueryEvents(ctx, store.Filter{Since: since, Limit: store.DefaultEventLimit})
	if err != nil {
		return err
	}
	leads, err := v.store.QueryLeads(ctx, store.Filter{Since: since, Limit: store.DefaultLeadLimit})
	if err != nil {
		return err
	}

	v.eventBatch = events
	v.leadBatch = leads
	v.liveTable = live.Seed(events, v.nowFunc())
	return nil
}

func (v *View) ingestEvent(e models.PageEvent) {
	v.eventBatch = append([]models.PageEvent{e}, v.eventBatch...)
	if len(v.eventBatch) > store.DefaultEventLimit {
		v.eventBatch = v.eventBatch[:store.DefaultEventLimit]
	}
	v.liveTable = live.Apply(v.liveTable, e)
}

func (v *View) ingestLead(l models.Lead) {
	v.leadBatch = append([]models.Lead{l}, v.leadBatch...)
	if len(v.leadBatch) > store.DefaultLeadLimit {
		v.leadBatch = v.leadBatch[:store.DefaultLeadLimit]
	}
}

func (v *View) broadcastLive() {
	if v.hub == nil {
		return
	}
	table := make([]live.Session, len(v.liveTable))
	copy(table, v.liveTable)
	v.hub.Broadcast(encodeLiveFrame(table))
}

// snapshot recomputes every derived structure from the batches filtered
// to the requested window. The batches are small by construction, so a
// full recompute per request is cheaper than keeping incremental
// derived state correct.
func (v *View) snapshot(days int) Snapshot {
	now := v.nowFunc()
	cutoff := now.AddDate(0, 0, -days)

	var events []models.PageEvent
	for _, e := range v.eventBatch {
		if !e.CreatedAt.Before(cutoff) {
			events = append(events, e)
		}
	}
	var leads []models.Lead
	for _, l := range v.leadBatch {
		if !l.CreatedAt.Before(cutoff) {
			leads = append(leads, l)
		}
	}

	liveCopy := make([]live.Session, len(v.liveTable))
	copy(liveCopy, v.liveTable)

	return Snapshot{
		GeneratedAt: now,
		WindowDays:  days,
		EventCount:  len(events),
		LeadCount:   len(leads),
		Attribution: attribution.BuildTree(events, leads),
		Locations:   geo.Aggregate(leads, events),
		Live:        liveCopy,
		Rollups: Rollups{
			DeviceMix:        rollup.ComputeDeviceMix(events, leads),
			DeviceConversion: rollup.ComputeDeviceConversion(leads),
			Treatments:       rollup.ComputeTreatmentHistogram(leads),
			Funnel:           rollup.ComputeFunnel(events, leads),
			TopCities:        rollup.ComputeTopCities(events, leads),
			TopStates:        rollup.ComputeTopStates(events, leads),
			ConversionRate:   rollup.ComputeConversionRate(leads),
		},
	}
}

func encodeLiveFrame(sessions []live.Session) []byte {
	if sessions == nil {
		sessions = []live.Session{}
	}
	frame, err := json.Marshal(map[string]any{
		"type":     "live",
		"sessions": sessions,
	})
	if err != nil {
		return nil
	}
	return frame
}
