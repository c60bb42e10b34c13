package attribution

import (
	"sort"

	"github.com/novalyte/vantage/internal/models"
)

// Sentinel grouping keys for records with no campaign or keyword tagging.
const (
	CampaignUnattributed = "Unattributed"
	KeywordNone          = "(no keyword)"
)

// KeywordNode is a leaf of the attribution tree.
type KeywordNode struct {
	Keyword  string `json:"keyword"`
	Sessions int    `json:"sessions"`
	Leads    int    `json:"leads"`
	Bounce   int    `json:"bounce"`
}

// CampaignNode groups keywords under one utm_campaign value.
type CampaignNode struct {
	Campaign string        `json:"campaign"`
	Sessions int           `json:"sessions"`
	Leads    int           `json:"leads"`
	Bounce   int           `json:"bounce"`
	Keywords []KeywordNode `json:"keywords"`
}

// SourceNode is one channel. All three channels are always present in a
// built tree, even with zero activity.
type SourceNode struct {
	Source    string         `json:"source"`
	Sessions  int            `json:"sessions"`
	Leads     int            `json:"leads"`
	Bounce    int            `json:"bounce"`
	Campaigns []CampaignNode `json:"campaigns"`
}

// Tree is the three-level source -> campaign -> keyword rollup.
type Tree struct {
	Sources []SourceNode `json:"sources"`
}

type nodeKey struct {
	source   string
	campaign string
	keyword  string
}

type counts struct {
	sessions int
	leads    int
}

// BuildTree folds a batch of page events and a batch of leads into the
// attribution tree.
//
// Events must be ordered newest-first (the store's default fetch order).
// A session is classified by the first event seen for it in scan order,
// so with newest-first input the most recent tagging for a session wins;
// later events for the same session are ignored. Leads are not
// session-deduplicated: every lead counts once, classified from its own
// record fields.
//
// Bounce at every node is max(0, sessions-leads). That is a clamped
// subtraction kept for compatibility with the existing dashboard, not a
// true single-page-exit rate.
func BuildTree(events []models.PageEvent, leads []models.Lead) Tree {
	tally := make(map[nodeKey]*counts)
	seen := make(map[string]struct{})

	for _, e := range events {
		if _, ok := seen[e.SessionID]; ok {
			continue
		}
		seen[e.SessionID] = struct{}{}

		key := nodeKey{
			source:   Classify(e.UTMSource, e.UTMMedium, e.GCLID),
			campaign: eventCampaign(e),
			keyword:  eventKeyword(e),
		}
		bump(tally, key).sessions++
	}

	for _, l := range leads {
		key := nodeKey{
			source:   Classify(l.UTMSource, l.UTMMedium, l.GCLID),
			campaign: orSentinel(l.UTMCampaign, CampaignUnattributed),
			keyword:  orSentinel(l.UTMTerm, KeywordNone),
		}
		bump(tally, key).leads++
	}

	return assemble(tally)
}

func bump(tally map[nodeKey]*counts, key nodeKey) *counts {
	c, ok := tally[key]
	if !ok {
		c = &counts{}
		tally[key] = c
	}
	return c
}

// eventCampaign prefers the utm_campaign column, then the copy embedded
// in the event payload by the tracker.
func eventCampaign(e models.PageEvent) string {
	if e.UTMCampaign != "" {
		return e.UTMCampaign
	}
	if v, ok := e.EventData["utm_campaign"].(string); ok && v != "" {
		return v
	}
	return CampaignUnattributed
}

// eventKeyword reads the payload-embedded utm_term; the tracker never
// promoted it to a column.
func eventKeyword(e models.PageEvent) string {
	if v, ok := e.EventData["utm_term"].(string); ok && v != "" {
		return v
	}
	return KeywordNone
}

func orSentinel(value, sentinel string) string {
	if value == "" {
		return sentinel
	}
	return value
}

func assemble(tally map[nodeKey]*counts) Tree {
	type kwAgg map[string]*counts
	type campAgg map[string]kwAgg

	bySource := make(map[string]campAgg, len(SourceOrder))
	for _, s := range SourceOrder {
		bySource[s] = make(campAgg)
	}

	for key, c := range tally {
		campaigns := bySource[key.source]
		keywords, ok := campaigns[key.campaign]
		if !ok {
			keywords = make(kwAgg)
			campaigns[key.campaign] = keywords
		}
		if existing, ok := keywords[key.keyword]; ok {
			existing.sessions += c.sessions
			existing.leads += c.leads
		} else {
			keywords[key.keyword] = &counts{sessions: c.sessions, leads: c.leads}
		}
	}

	tree := Tree{Sources: make([]SourceNode, 0, len(SourceOrder))}
	for _, source := range SourceOrder {
		sn := SourceNode{Source: source, Campaigns: make([]CampaignNode, 0, len(bySource[source]))}

		for campaign, keywords := range bySource[source] {
			cn := CampaignNode{Campaign: campaign, Keywords: make([]KeywordNode, 0, len(keywords))}

			for keyword, c := range keywords {
				cn.Keywords = append(cn.Keywords, KeywordNode{
					Keyword:  keyword,
					Sessions: c.sessions,
					Leads:    c.leads,
					Bounce:   clampedBounce(c.sessions, c.leads),
				})
				cn.Sessions += c.sessions
				cn.Leads += c.leads
			}

			cn.Bounce = clampedBounce(cn.Sessions, cn.Leads)
			sortKeywords(cn.Keywords)
			sn.Campaigns = append(sn.Campaigns, cn)
			sn.Sessions += cn.Sessions
			sn.Leads += cn.Leads
		}

		sn.Bounce = clampedBounce(sn.Sessions, sn.Leads)
		sortCampaigns(sn.Campaigns)
		tree.Sources = append(tree.Sources, sn)
	}

	return tree
}

func clampedBounce(sessions, leads int) int {
	if sessions > leads {
		return sessions - leads
	}
	return 0
}

// Campaigns and keywords rank by sessions, then leads. The trailing name
// comparison only exists to keep rebuilds of the same batch byte-stable.
func sortCampaigns(nodes []CampaignNode) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Sessions != nodes[j].Sessions {
			return nodes[i].Sessions > nodes[j].Sessions
		}
		if nodes[i].Leads != nodes[j].Leads {
			return nodes[i].Leads > nodes[j].Leads
		}
		return nodes[i].Campaign < nodes[j].Campaign
	})
}

func sortKeywords(nodes []KeywordNode) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Sessions != nodes[j].Sessions {
			return nodes[i].Sessions > nodes[j].Sessions
		}
		if nodes[i].Leads != nodes[j].Leads {
			return nodes[i].Leads > nodes[j].Leads
		}
		return nodes[i].Keyword < nodes[j].Keyword
	})
}
