package attribution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novalyte/vantage/internal/models"
)

func event(session, source, medium, campaign, gclid string, data map[string]any) models.PageEvent {
	return models.PageEvent{
		ID:          session + "-evt",
		CreatedAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		SessionID:   session,
		EventType:   "page_view",
		UTMSource:   source,
		UTMMedium:   medium,
		UTMCampaign: campaign,
		GCLID:       gclid,
		EventData:   data,
	}
}

func sourceByName(t *testing.T, tree Tree, name string) SourceNode {
	t.Helper()
	for _, s := range tree.Sources {
		if s.Source == name {
			return s
		}
	}
	t.Fatalf("source %q not in tree", name)
	return SourceNode{}
}

func TestBuildTreeEmptyInputKeepsFixedSources(t *testing.T) {
	tree := BuildTree(nil, nil)

	require.Len(t, tree.Sources, 3)
	assert.Equal(t, SourceGoogleAds, tree.Sources[0].Source)
	assert.Equal(t, SourceOrganic, tree.Sources[1].Source)
	assert.Equal(t, SourceDirect, tree.Sources[2].Source)
	for _, s := range tree.Sources {
		assert.Zero(t, s.Sessions)
		assert.Zero(t, s.Leads)
		assert.Zero(t, s.Bounce)
		assert.Empty(t, s.Campaigns)
	}
}

func TestBuildTreeSingleGclidLead(t *testing.T) {
	lead := models.Lead{ID: "l1", Status: "new", GCLID: "abc"}

	tree := BuildTree(nil, []models.Lead{lead})

	ads := tree.Sources[0]
	assert.Equal(t, SourceGoogleAds, ads.Source)
	assert.Equal(t, 1, ads.Leads)
	assert.Zero(t, ads.Sessions)
	assert.Zero(t, ads.Bounce)

	require.Len(t, ads.Campaigns, 1)
	assert.Equal(t, CampaignUnattributed, ads.Campaigns[0].Campaign)
	assert.Equal(t, 1, ads.Campaigns[0].Leads)
	require.Len(t, ads.Campaigns[0].Keywords, 1)
	assert.Equal(t, KeywordNone, ads.Campaigns[0].Keywords[0].Keyword)
	assert.Equal(t, 1, ads.Campaigns[0].Keywords[0].Leads)

	assert.Zero(t, tree.Sources[1].Leads)
	assert.Zero(t, tree.Sources[2].Leads)
}

func TestBuildTreeFirstSeenWinsPerSession(t *testing.T) {
	// Two events for the same session: the one scanned first carries the
	// paid tagging, the second is untagged. First-seen wins.
	events := []models.PageEvent{
		event("s1", "google", "cpc", "summer", "", nil),
		event("s1", "", "", "", "", nil),
	}

	tree := BuildTree(events, nil)

	ads := sourceByName(t, tree, SourceGoogleAds)
	assert.Equal(t, 1, ads.Sessions)
	require.Len(t, ads.Campaigns, 1)
	assert.Equal(t, "summer", ads.Campaigns[0].Campaign)

	assert.Zero(t, sourceByName(t, tree, SourceDirect).Sessions)
}

func TestBuildTreePayloadFallbacks(t *testing.T) {
	events := []models.PageEvent{
		event("s1", "newsletter", "", "", "", map[string]any{
			"utm_campaign": "spring-promo",
			"utm_term":     "knee pain",
		}),
	}

	tree := BuildTree(events, nil)

	organic := sourceByName(t, tree, SourceOrganic)
	require.Len(t, organic.Campaigns, 1)
	assert.Equal(t, "spring-promo", organic.Campaigns[0].Campaign)
	require.Len(t, organic.Campaigns[0].Keywords, 1)
	assert.Equal(t, "knee pain", organic.Campaigns[0].Keywords[0].Keyword)
}

func TestBuildTreeLeadsNotSessionDeduplicated(t *testing.T) {
	leads := []models.Lead{
		{ID: "l1", SessionID: "s1", UTMSource: "yelp"},
		{ID: "l2", SessionID: "s1", UTMSource: "yelp"},
	}

	tree := BuildTree(nil, leads)
	assert.Equal(t, 2, sourceByName(t, tree, SourceOrganic).Leads)
}

func TestBuildTreeBounceClampsAtZero(t *testing.T) {
	events := []models.PageEvent{
		event("s1", "yelp", "", "", "", nil),
		event("s2", "yelp", "", "", "", nil),
		event("s3", "yelp", "", "", "", nil),
	}
	leads := []models.Lead{
		{ID: "l1", UTMSource: "yelp"},
		{ID: "l2", UTMSource: "yelp"},
		{ID: "l3", UTMSource: "yelp"},
		{ID: "l4", UTMSource: "yelp"},
	}

	tree := BuildTree(events, leads)

	organic := sourceByName(t, tree, SourceOrganic)
	assert.Equal(t, 3, organic.Sessions)
	assert.Equal(t, 4, organic.Leads)
	assert.Zero(t, organic.Bounce)
}

func TestBuildTreeCountsSumAcrossLevels(t *testing.T) {
	events := []models.PageEvent{
		event("s1", "google", "cpc", "brand", "", map[string]any{"utm_term": "clinic near me"}),
		event("s2", "google", "cpc", "brand", "", map[string]any{"utm_term": "med spa"}),
		event("s3", "google", "cpc", "generic", "", nil),
		event("s4", "", "", "", "", nil),
		event("s5", "bing", "organic", "", "", nil),
	}
	leads := []models.Lead{
		{ID: "l1", GCLID: "x", UTMCampaign: "brand", UTMTerm: "clinic near me"},
		{ID: "l2", UTMSource: "bing"},
	}

	tree := BuildTree(events, leads)

	for _, s := range tree.Sources {
		var sessions, leadCount int
		for _, c := range s.Campaigns {
			sessions += c.Sessions
			leadCount += c.Leads

			var kwSessions, kwLeads int
			for _, k := range c.Keywords {
				kwSessions += k.Sessions
				kwLeads += k.Leads
			}
			assert.Equal(t, c.Sessions, kwSessions, "campaign %s/%s", s.Source, c.Campaign)
			assert.Equal(t, c.Leads, kwLeads, "campaign %s/%s", s.Source, c.Campaign)
		}
		assert.Equal(t, s.Sessions, sessions, "source %s", s.Source)
		assert.Equal(t, s.Leads, leadCount, "source %s", s.Source)
	}

	ads := sourceByName(t, tree, SourceGoogleAds)
	assert.Equal(t, 3, ads.Sessions)
	assert.Equal(t, 1, ads.Leads)
	// brand outranks generic: 2 sessions vs 1
	require.True(t, len(ads.Campaigns) >= 2)
	assert.Equal(t, "brand", ads.Campaigns[0].Campaign)
	assert.Equal(t, "generic", ads.Campaigns[1].Campaign)
}

func TestBuildTreeCampaignTieBreaksOnLeads(t *testing.T) {
	events := []models.PageEvent{
		event("s1", "yelp", "", "alpha", "", nil),
		event("s2", "yelp", "", "beta", "", nil),
	}
	leads := []models.Lead{
		{ID: "l1", UTMSource: "yelp", UTMCampaign: "beta"},
	}

	tree := BuildTree(events, leads)

	organic := sourceByName(t, tree, SourceOrganic)
	require.Len(t, organic.Campaigns, 2)
	assert.Equal(t, "beta", organic.Campaigns[0].Campaign)
	assert.Equal(t, "alpha", organic.Campaigns[1].Campaign)
}

func TestBuildTreeIsDeterministic(t *testing.T) {
	events := []models.PageEvent{
		event("s1", "google", "cpc", "brand", "", map[string]any{"utm_term": "a"}),
		event("s2", "google", "cpc", "brand", "", map[string]any{"utm_term": "b"}),
		event("s3", "bing", "", "other", "", nil),
		event("s4", "", "", "", "", nil),
	}
	leads := []models.Lead{
		{ID: "l1", GCLID: "g", UTMCampaign: "brand", UTMTerm: "a"},
		{ID: "l2", UTMSource: "bing", UTMCampaign: "other"},
	}

	first := BuildTree(events, leads)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, BuildTree(events, leads))
	}
}
