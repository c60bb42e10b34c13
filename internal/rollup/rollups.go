package rollup

import (
	"math"
	"sort"
	"strings"

	"github.com/novalyte/vantage/internal/models"
)

// Caps on the top-geography lists.
const (
	TopCityLimit  = 15
	TopStateLimit = 12
)

// DeviceMix buckets distinct visitors by device class.
type DeviceMix struct {
	Mobile  int `json:"mobile"`
	Desktop int `json:"desktop"`
	Tablet  int `json:"tablet"`
}

// DeviceConversion is the lead conversion rate per device bucket, in
// whole percent.
type DeviceConversion struct {
	Mobile  int `json:"mobile"`
	Desktop int `json:"desktop"`
	Tablet  int `json:"tablet"`
}

// NameCount is one histogram bar.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Funnel carries the raw step counts of the acquisition funnel.
type Funnel struct {
	PageViews     int `json:"page_views"`
	QuizStarts    int `json:"quiz_starts"`
	QuizCompletes int `json:"quiz_completes"`
	LeadCaptures  int `json:"lead_captures"`
}

// deviceBucket folds the open device_type vocabulary into the three
// dashboard buckets; anything unrecognized or missing counts as desktop.
func deviceBucket(deviceType string) string {
	switch strings.ToLower(strings.TrimSpace(deviceType)) {
	case "mobile":
		return "mobile"
	case "tablet":
		return "tablet"
	default:
		return "desktop"
	}
}

// ComputeDeviceMix gives one vote per distinct event session (first
// occurrence wins) and one additional vote per lead whose session was
// not already counted from events. A lead with no session id always
// counts.
func ComputeDeviceMix(events []models.PageEvent, leads []models.Lead) DeviceMix {
	var mix DeviceMix
	counted := make(map[string]struct{})

	vote := func(deviceType string) {
		switch deviceBucket(deviceType) {
		case "mobile":
			mix.Mobile++
		case "tablet":
			mix.Tablet++
		default:
			mix.Desktop++
		}
	}

	for _, e := range events {
		if _, ok := counted[e.SessionID]; ok {
			continue
		}
		counted[e.SessionID] = struct{}{}
		vote(e.DeviceType)
	}

	for _, l := range leads {
		if l.SessionID != "" {
			if _, ok := counted[l.SessionID]; ok {
				continue
			}
			counted[l.SessionID] = struct{}{}
		}
		vote(l.DeviceType)
	}

	return mix
}

// ComputeDeviceConversion computes per-bucket lead conversion percent;
// empty buckets report zero.
func ComputeDeviceConversion(leads []models.Lead) DeviceConversion {
	type tally struct{ total, converted int }
	buckets := map[string]*tally{
		"mobile":  {},
		"desktop": {},
		"tablet":  {},
	}

	for _, l := range leads {
		t := buckets[deviceBucket(l.DeviceType)]
		t.total++
		if l.Converted() {
			t.converted++
		}
	}

	return DeviceConversion{
		Mobile:  percent(buckets["mobile"].converted, buckets["mobile"].total),
		Desktop: percent(buckets["desktop"].converted, buckets["desktop"].total),
		Tablet:  percent(buckets["tablet"].converted, buckets["tablet"].total),
	}
}

// ComputeTreatmentHistogram counts leads per requested treatment, blank
// values grouped under "Unknown", sorted by count descending.
func ComputeTreatmentHistogram(leads []models.Lead) []NameCount {
	counts := make(map[string]int)
	for _, l := range leads {
		name := strings.TrimSpace(l.Treatment)
		if name == "" {
			name = "Unknown"
		}
		counts[name]++
	}
	return sortedCounts(counts, 0)
}

// ComputeFunnel counts funnel-step events. When no lead_capture events
// were recorded at all, the captured-lead count falls back to the size
// of the lead batch so the funnel floor never reads zero while leads
// exist.
func ComputeFunnel(events []models.PageEvent, leads []models.Lead) Funnel {
	var f Funnel
	for _, e := range events {
		switch ParseKind(e.EventType) {
		case KindPageView:
			f.PageViews++
		case KindQuizStart:
			f.QuizStarts++
		case KindQuizComplete:
			f.QuizCompletes++
		case KindLeadCapture:
			f.LeadCaptures++
		}
	}
	if f.LeadCaptures == 0 {
		f.LeadCaptures = len(leads)
	}
	return f
}

// ComputeTopCities counts city occurrences across the union of events
// and leads, capped at TopCityLimit.
func ComputeTopCities(events []models.PageEvent, leads []models.Lead) []NameCount {
	counts := make(map[string]int)
	for _, e := range events {
		addPlace(counts, e.GeoCity)
	}
	for _, l := range leads {
		addPlace(counts, l.GeoCity)
	}
	return sortedCounts(counts, TopCityLimit)
}

// ComputeTopStates is the state-level counterpart, capped at TopStateLimit.
func ComputeTopStates(events []models.PageEvent, leads []models.Lead) []NameCount {
	counts := make(map[string]int)
	for _, e := range events {
		addPlace(counts, e.GeoState)
	}
	for _, l := range leads {
		addPlace(counts, l.GeoState)
	}
	return sortedCounts(counts, TopStateLimit)
}

// ComputeConversionRate is the overall lead conversion in whole percent.
func ComputeConversionRate(leads []models.Lead) int {
	converted := 0
	for _, l := range leads {
		if l.Converted() {
			converted++
		}
	}
	return percent(converted, len(leads))
}

func addPlace(counts map[string]int, place string) {
	place = strings.TrimSpace(place)
	if place == "" || place == "Unknown" {
		return
	}
	counts[place]++
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

// sortedCounts orders by count descending; the name tie-break keeps
// repeated computations over the same batch byte-stable. A limit of
// zero means unbounded.
func sortedCounts(counts map[string]int, limit int) []NameCount {
	out := make([]NameCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, NameCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
