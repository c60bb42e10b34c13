// Package rollup computes the independent single-pass metric folds shown
// on the dashboard: device mix, conversion rates, treatment interest,
// funnel steps and top geographies.
package rollup

// EventKind is the closed vocabulary of tracked visitor actions. Raw
// event_type strings outside the vocabulary parse to KindUnknown so new
// collector versions degrade instead of breaking the rollups.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindPageView
	KindQuizStart
	KindQuizComplete
	KindLeadCapture
	KindScrollDepth
	KindInteraction
	KindHeartbeat
	KindSessionStart
)

// ParseKind maps a raw event_type to its kind. Total: unrecognized
// values land on KindUnknown.
func ParseKind(eventType string) EventKind {
	switch eventType {
	case "page_view":
		return KindPageView
	case "quiz_start":
		return KindQuizStart
	case "quiz_complete":
		return KindQuizComplete
	case "lead_capture", "conversion":
		return KindLeadCapture
	case "scroll_depth":
		return KindScrollDepth
	case "interaction":
		return KindInteraction
	case "heartbeat":
		return KindHeartbeat
	case "session_start":
		return KindSessionStart
	default:
		return KindUnknown
	}
}

// Label is the human-readable activity description used by the live feed.
func (k EventKind) Label() string {
	switch k {
	case KindPageView:
		return "Viewing page"
	case KindQuizStart:
		return "Started quiz"
	case KindQuizComplete:
		return "Completed quiz"
	case KindLeadCapture:
		return "Became a lead"
	case KindScrollDepth:
		return "Scrolling"
	case KindInteraction:
		return "Interacting"
	case KindHeartbeat:
		return "Active"
	case KindSessionStart:
		return "Session started"
	default:
		return "Unknown activity"
	}
}
