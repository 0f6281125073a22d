// Package query holds the derived views over a store snapshot. Everything
// here is a pure function of its arguments: no store access, no side
// effects, safe to call from any number of readers.
package query

import (
	"net/url"
	"strings"

	"leadline/internal/domain"
)

// FilterContacts keeps contacts whose name, company, or job title contains
// term, case-insensitively. An empty term returns the input unfiltered, in
// its original order.
func FilterContacts(contacts []domain.Contact, term string) []domain.Contact {
	if term == "" {
		return contacts
	}
	needle := strings.ToLower(term)
	var res []domain.Contact
	for _, c := range contacts {
		if containsFold(c.Name, needle) || containsFold(c.Company, needle) || containsFold(c.JobTitle, needle) {
			res = append(res, c)
		}
	}
	return res
}

// FilterLeads keeps leads whose name, company, or email contains term,
// case-insensitively; empty term is the identity.
func FilterLeads(leads []domain.Lead, term string) []domain.Lead {
	if term == "" {
		return leads
	}
	needle := strings.ToLower(term)
	var res []domain.Lead
	for _, l := range leads {
		if containsFold(l.Name, needle) || containsFold(l.Company, needle) || containsFold(l.Email, needle) {
			res = append(res, l)
		}
	}
	return res
}

func containsFold(haystack, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(haystack), lowerNeedle)
}

// StageGroup is one column of the pipeline board.
type StageGroup struct {
	Stage domain.DealStage `json:"stage"`
	Deals []domain.Deal    `json:"deals"`
	Total float64          `json:"total"`
}

// GroupDealsByStage buckets deals into the fixed board ordering, preserving
// each deal's relative order within its stage, with a per-stage value
// subtotal. Deals in stages outside the ordering (CLOSED_LOST) do not appear:
// that is the archival policy carried by domain.PipelineStages.
func GroupDealsByStage(deals []domain.Deal, stages []domain.DealStage) []StageGroup {
	groups := make([]StageGroup, 0, len(stages))
	for _, stage := range stages {
		g := StageGroup{Stage: stage, Deals: []domain.Deal{}}
		for _, d := range deals {
			if d.Stage == stage {
				g.Deals = append(g.Deals, d)
				g.Total += d.Value
			}
		}
		groups = append(groups, g)
	}
	return groups
}

// AdvanceStage returns the successor of current in the cyclic board
// ordering, wrapping from the last stage back to the first. A stage outside
// the ordering maps to the first stage.
func AdvanceStage(current domain.DealStage, stages []domain.DealStage) domain.DealStage {
	for i, s := range stages {
		if s == current {
			return stages[(i+1)%len(stages)]
		}
	}
	return stages[0]
}

// PipelineTotal sums deal values across every stage, lost deals included.
func PipelineTotal(deals []domain.Deal) float64 {
	var total float64
	for _, d := range deals {
		total += d.Value
	}
	return total
}

// PendingTaskCount counts tasks not yet completed.
func PendingTaskCount(tasks []domain.Task) int {
	n := 0
	for _, t := range tasks {
		if !t.Completed {
			n++
		}
	}
	return n
}

// ResolveLead looks up a weak lead reference. Dangling references (a deal or
// task pointing at a lead that never existed or was removed) resolve to
// ok=false; callers render a blank label.
func ResolveLead(leads []domain.Lead, leadID string) (domain.Lead, bool) {
	for _, l := range leads {
		if l.ID == leadID {
			return l, true
		}
	}
	return domain.Lead{}, false
}

const avatarBaseURL = "https://api.dicebear.com/7.x/avataaars/svg"

// AvatarURL resolves the display avatar for a contact: the stored URL when
// present, otherwise a deterministic placeholder derived from the contact's
// name. Storage keeps only what the user supplied; defaulting lives here.
func AvatarURL(c domain.Contact) string {
	if c.AvatarURL != "" {
		return c.AvatarURL
	}
	return avatarBaseURL + "?seed=" + url.QueryEscape(c.Name)
}
