package tui

import (
	"github.com/csheth/citejump/internal/match"
)

// pageHighlights receives highlight calls from the controller and remembers
// which raster lines to paint.
type pageHighlights struct {
	marked    map[int]bool
	confident bool
	scrollTo  int
	pending   bool
}

func newPageHighlights() *pageHighlights {
	return &pageHighlights{marked: map[int]bool{}}
}

func (h *pageHighlights) Clear(region match.Region) {
	for _, i := range region.Indices {
		delete(h.marked, i)
	}
	h.pending = false
}

func (h *pageHighlights) Apply(region match.Region, fragments []match.Fragment) {
	for _, i := range region.Indices {
		if i >= 0 && i < len(fragments) {
			h.marked[i] = true
		}
	}
	h.confident = region.Confident()
}

func (h *pageHighlights) ScrollTo(fragment int) {
	h.scrollTo = fragment
	h.pending = true
}

func (h *pageHighlights) Marked(fragment int) bool {
	return h.marked[fragment]
}

// takeScroll returns the fragment to bring into view at most once per Apply.
func (h *pageHighlights) takeScroll() (int, bool) {
	if !h.pending {
		return 0, false
	}
	h.pending = false
	return h.scrollTo, true
}
