// Package attribution groups page events and leads into the
// source/campaign/keyword tree that drives the acquisition dashboard.
package attribution

import "strings"

// Channel labels. Every event and lead maps to exactly one of these;
// there is no unknown bucket.
const (
	SourceGoogleAds = "Google Ads"
	SourceOrganic   = "Organic"
	SourceDirect    = "Direct"
)

// SourceOrder is the fixed display order of channels. Zero-count
// channels still appear in tree output, in this order.
var SourceOrder = []string{SourceGoogleAds, SourceOrganic, SourceDirect}

var paidMediums = map[string]struct{}{
	"cpc":  {},
	"ppc":  {},
	"paid": {},
}

// Classify maps raw UTM fields and a Google click id to a channel label.
// A present gclid always wins. It is a total function: malformed or
// missing fields degrade to Direct or Organic, never to an error.
func Classify(utmSource, utmMedium, gclid string) string {
	if gclid != "" {
		return SourceGoogleAds
	}

	if utmSource == "google" {
		if _, ok := paidMediums[strings.ToLower(utmMedium)]; ok {
			return SourceGoogleAds
		}
	}

	switch strings.ToLower(utmSource) {
	case "", "(direct)", "direct":
		return SourceDirect
	}

	return SourceOrganic
}
