package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/novalyte/vantage/internal/database"
	"github.com/novalyte/vantage/internal/logging"
	"github.com/novalyte/vantage/internal/models"
)

// Postgres channels the server subscribes to. The first two carry rows
// inserted by triggers; the traffic channel carries payloads published
// straight from the ingest endpoint.
const (
	ChannelEventInserts = "vantage_event_inserts"
	ChannelLeadInserts  = "vantage_lead_inserts"
	ChannelTraffic      = "vantage_traffic"
)

// Sink receives decoded insert notifications. The dashboard view
// implements it; both methods must be safe to call from the listener
// goroutine.
type Sink interface {
	ApplyEvent(models.PageEvent)
	ApplyLead(models.Lead)
}

// TrafficPayload is a loosely-shaped event published on the traffic
// channel. External publishers may omit identity fields, so every one
// has a default.
type TrafficPayload struct {
	ID          string         `json:"id,omitempty"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
	SessionID   string         `json:"session_id"`
	EventType   string         `json:"event_type,omitempty"`
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

// Event fills in the defaults and returns the concrete row. Missing id
// gets a fresh uuid, missing created_at the current time, missing
// event_type "page_view".
func (p TrafficPayload) Event(now time.Time) models.PageEvent {
	e := models.PageEvent{
		ID:          p.ID,
		CreatedAt:   now,
		SessionID:   p.SessionID,
		EventType:   p.EventType,
		EventData:   p.EventData,
		UTMSource:   p.UTMSource,
		UTMMedium:   p.UTMMedium,
		UTMCampaign: p.UTMCampaign,
		UTMTerm:     p.UTMTerm,
		GCLID:       p.GCLID,
		Referrer:    p.Referrer,
		GeoCity:     p.GeoCity,
		GeoState:    p.GeoState,
		GeoLat:      p.GeoLat,
		GeoLng:      p.GeoLng,
		DeviceType:  p.DeviceType,
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if p.CreatedAt != nil {
		e.CreatedAt = *p.CreatedAt
	}
	if e.EventType == "" {
		e.EventType = "page_view"
	}
	return e
}

// NotifyTraffic publishes a payload on the traffic channel so every
// server instance, this one included, picks it up through LISTEN.
func NotifyTraffic(ctx context.Context, payload TrafficPayload) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.L().Warn("failed to marshal traffic payload", "error", err)
		return
	}

	if _, err := database.DB.ExecContext(ctx, "SELECT pg_notify($1, $2)", ChannelTraffic, string(data)); err != nil {
		logging.L().Warn("failed to publish traffic payload", "error", err)
	}
}

// StartListener subscribes to the three channels and dispatches
// notifications until the context ends. Insert rows go to the sink;
// traffic payloads are normalized first.
func StartListener(ctx context.Context, databaseURL string, sink Sink) error {
	listener := pq.NewListener(databaseURL, 5*time.Second, time.Minute, func(event pq.ListenerEventType, err error) {
		if err != nil {
			logging.L().Warn("realtime listener event", "event", event, "error", err)
		}
	})

	for _, channel := range []string{ChannelEventInserts, ChannelLeadInserts, ChannelTraffic} {
		if err := listener.Listen(channel); err != nil {
			_ = listener.Close()
			return err
		}
	}

	go func() {
		defer func() {
			_ = listener.Close()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				if n == nil {
					continue
				}
				dispatch(sink, n.Channel, []byte(n.Extra), time.Now())
			case <-time.After(time.Minute):
				if err := listener.Ping(); err != nil {
					logging.L().Warn("realtime listener ping failed", "error", err)
				}
			}
		}
	}()

	return nil
}

func dispatch(sink Sink, channel string, payload []byte, now time.Time) {
	switch channel {
	case ChannelEventInserts:
		var event models.PageEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			logging.L().Warn("malformed event notification", "error", err)
			return
		}
		sink.ApplyEvent(event)
	case ChannelLeadInserts:
		var lead models.Lead
		if err := json.Unmarshal(payload, &lead); err != nil {
			logging.L().Warn("malformed lead notification", "error", err)
			return
		}
		sink.ApplyLead(lead)
	case ChannelTraffic:
		var traffic TrafficPayload
		if err := json.Unmarshal(payload, &traffic); err != nil {
			logging.L().Warn("malformed traffic payload", "error", err)
			return
		}
		if traffic.SessionID == "" {
			return
		}
		sink.ApplyEvent(traffic.Event(now))
	}
}
