package tui

import (
	"strings"
	"testing"

	"github.com/csheth/citejump/internal/citation"
	"github.com/csheth/citejump/internal/document"
	"github.com/csheth/citejump/internal/match"
)

func TestPageLayoutUpdate(t *testing.T) {
	cases := []struct {
		name           string
		width          int
		height         int
		sidebarWidth   int
		viewportWidth  int
		viewportHeight int
	}{
		{name: "narrow", width: 60, height: 10, sidebarWidth: 0, viewportWidth: 56, viewportHeight: 5},
		{name: "standard", width: 80, height: 24, sidebarWidth: 26, viewportWidth: 50, viewportHeight: 18},
		{name: "wide", width: 200, height: 40, sidebarWidth: 40, viewportWidth: 156, viewportHeight: 34},
		{name: "tiny", width: 20, height: 3, sidebarWidth: 0, viewportWidth: 40, viewportHeight: 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			layout := newPageLayout()
			layout.Update(tc.width, tc.height)
			if layout.sidebarWidth != tc.sidebarWidth {
				t.Fatalf("sidebar width mismatch: got %d want %d", layout.sidebarWidth, tc.sidebarWidth)
			}
			if layout.viewportWidth != tc.viewportWidth {
				t.Fatalf("viewport width mismatch: got %d want %d", layout.viewportWidth, tc.viewportWidth)
			}
			if layout.viewportHeight != tc.viewportHeight {
				t.Fatalf("viewport height mismatch: got %d want %d", layout.viewportHeight, tc.viewportHeight)
			}
		})
	}
}

func TestPageContentTracksFragments(t *testing.T) {
	raster := document.Layout(1, []match.Fragment{
		{Text: "heading", X: 72},
		{Text: "indented body text that runs long", X: 84},
	}, 1)
	h := newPageHighlights()
	h.Apply(match.Region{Tier: match.TierBoundary, Indices: []int{1}}, make([]match.Fragment, 2))

	content, offsets := pageContent(raster, h, 20)
	lines := strings.Split(content, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if offsets[1] != 1 {
		t.Fatalf("fragment 1 should be on line 1, got %d", offsets[1])
	}
	if !strings.Contains(lines[1], "  indented") {
		t.Fatalf("indent lost: %q", lines[1])
	}
	if !strings.Contains(lines[1], "…") || strings.Contains(lines[1], "long") {
		t.Fatalf("long line should be truncated: %q", lines[1])
	}
}

func TestCitationEntryClipsPreview(t *testing.T) {
	c := citation.Citation{
		DisplayIndex: 3,
		PageAddress:  "6 (¶1.2)",
		Text:         strings.Repeat("passage words ", 40),
	}
	entry := citationEntry(c, 30, true)
	lines := strings.Split(entry, "\n")
	if len(lines) != 1+previewLines {
		t.Fatalf("expected %d lines, got %d:\n%s", 1+previewLines, len(lines), entry)
	}
	if !strings.Contains(lines[0], "[3] p. 6 ¶1.2") {
		t.Fatalf("label mismatch: %q", lines[0])
	}
	if !strings.Contains(lines[0], "▸") {
		t.Fatal("active entry should be marked")
	}
	if strings.Contains(citationEntry(c, 30, false), "▸") {
		t.Fatal("inactive entry should not be marked")
	}
}

func TestHighlightsScrollOnce(t *testing.T) {
	h := newPageHighlights()
	if _, ok := h.takeScroll(); ok {
		t.Fatal("nothing to scroll to yet")
	}
	region := match.Region{Tier: match.TierKeyword, Indices: []int{2, 5, 9}}
	h.Apply(region, make([]match.Fragment, 6))
	h.ScrollTo(2)
	if h.confident {
		t.Fatal("keyword regions are approximate")
	}
	if !h.Marked(5) || h.Marked(9) {
		t.Fatal("out of range indices must be ignored")
	}
	if got, ok := h.takeScroll(); !ok || got != 2 {
		t.Fatalf("takeScroll = %d, %v", got, ok)
	}
	if _, ok := h.takeScroll(); ok {
		t.Fatal("scroll should be consumed")
	}
	h.Clear(region)
	if h.Marked(2) || h.Marked(5) {
		t.Fatal("clear should unmark the region")
	}
}
