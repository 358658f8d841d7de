// Package citation models the citations attached to a generated answer and
// builds the per-document bundle a viewer displays.
package citation

import (
	"sort"
)

// Citation is one piece of cited evidence. OriginIndex is assigned upstream
// and never renumbered; DisplayIndex is assigned by Build.
type Citation struct {
	OriginIndex  int      `json:"originIndex"`
	DisplayIndex int      `json:"displayIndex,omitempty"`
	DocumentID   string   `json:"documentId"`
	PageAddress  string   `json:"page"`
	Text         string   `json:"text"`
	SourceID     string   `json:"sourceId,omitempty"`
	Relevance    *float64 `json:"relevance,omitempty"`
}

// Bundle is the set of citations for one document, renumbered for display.
type Bundle struct {
	DocumentID         string     `json:"documentId"`
	Citations          []Citation `json:"citations"`
	ActiveDisplayIndex int        `json:"activeDisplayIndex"`
}

// Build filters all down to documentID, numbers the survivors from 1 in their
// original order and marks the one whose origin index was clicked as active.
// The active index falls back to 1 when the clicked citation is not in the
// document.
func Build(all []Citation, documentID string, clickedOrigin int) Bundle {
	bundle := Bundle{
		DocumentID:         documentID,
		Citations:          []Citation{},
		ActiveDisplayIndex: 1,
	}
	found := false
	for _, c := range all {
		if c.DocumentID != documentID {
			continue
		}
		c.DisplayIndex = len(bundle.Citations) + 1
		if !found && c.OriginIndex == clickedOrigin {
			bundle.ActiveDisplayIndex = c.DisplayIndex
			found = true
		}
		bundle.Citations = append(bundle.Citations, c)
	}
	return bundle
}

// Len returns the number of citations in the bundle.
func (b Bundle) Len() int {
	return len(b.Citations)
}

// ByDisplay returns the citation with display index i.
func (b Bundle) ByDisplay(i int) (Citation, bool) {
	if i < 1 || i > len(b.Citations) {
		return Citation{}, false
	}
	return b.Citations[i-1], true
}

// Active returns the citation that should be selected on open.
func (b Bundle) Active() (Citation, bool) {
	return b.ByDisplay(b.ActiveDisplayIndex)
}

// WithActive returns a copy of b with a different active citation. Out of
// range indices leave the bundle unchanged.
func (b Bundle) WithActive(display int) Bundle {
	if _, ok := b.ByDisplay(display); ok {
		b.ActiveDisplayIndex = display
	}
	return b
}

// DocumentIDs lists the distinct documents cited, in first-seen order.
func DocumentIDs(all []Citation) []string {
	seen := make(map[string]struct{}, len(all))
	ids := make([]string, 0, len(all))
	for _, c := range all {
		if _, ok := seen[c.DocumentID]; ok {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		ids = append(ids, c.DocumentID)
	}
	return ids
}

// ByRelevance orders citations by descending relevance. Citations without a
// score keep their relative order after scored ones.
func ByRelevance(all []Citation) []Citation {
	out := append([]Citation(nil), all...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Relevance, out[j].Relevance
		switch {
		case ri == nil:
			return false
		case rj == nil:
			return true
		default:
			return *ri > *rj
		}
	})
	return out
}
