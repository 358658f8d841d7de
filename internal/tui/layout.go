package tui

import (
	"fmt"
	"strings"

	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/csheth/citejump/internal/address"
	"github.com/csheth/citejump/internal/citation"
	"github.com/csheth/citejump/internal/document"
)

type pageLayout struct {
	windowWidth    int
	windowHeight   int
	sidebarWidth   int
	viewportWidth  int
	viewportHeight int
}

func newPageLayout() pageLayout {
	return pageLayout{
		sidebarWidth:   minSidebarWidth,
		viewportWidth:  80,
		viewportHeight: 20,
	}
}

// Update recomputes the panes. Narrow windows drop the citation sidebar.
func (l *pageLayout) Update(width, height int) {
	l.windowWidth = width
	l.windowHeight = height
	l.sidebarWidth = 0
	if width >= 2*minViewportWidth {
		sidebar := width / 3
		if sidebar < minSidebarWidth {
			sidebar = minSidebarWidth
		}
		if sidebar > maxSidebarWidth {
			sidebar = maxSidebarWidth
		}
		l.sidebarWidth = sidebar
	}
	innerWidth := width - l.sidebarWidth - viewportHorizontalPadding
	if innerWidth < minViewportWidth {
		innerWidth = minViewportWidth
	}
	l.viewportWidth = innerWidth
	innerHeight := height - chromeHeight
	if innerHeight < minViewportHeight {
		innerHeight = minViewportHeight
	}
	l.viewportHeight = innerHeight
}

// pageContent renders the raster, one line per fragment. It returns the
// content and the line each fragment landed on.
func pageContent(raster document.Raster, h *pageHighlights, width int) (string, map[int]int) {
	lines := make([]string, 0, len(raster.Lines))
	offsets := make(map[int]int, len(raster.Lines))
	for i, line := range raster.Lines {
		offsets[line.Fragment] = i
		text := strings.Repeat(" ", line.Indent) + line.Text
		if width > 0 {
			text = truncate.StringWithTail(text, uint(width), "…")
		}
		if h != nil && h.Marked(line.Fragment) {
			if h.confident {
				text = highlightStyle.Render(text)
			} else {
				text = approximateStyle.Render(text)
			}
		}
		lines = append(lines, text)
	}
	return strings.Join(lines, "\n"), offsets
}

// citationEntry renders one sidebar entry with a wrapped, clipped preview.
func citationEntry(c citation.Citation, width int, active bool) string {
	label := fmt.Sprintf("[%d] %s", c.DisplayIndex, address.Parse(c.PageAddress).Label())
	if active {
		label = activeCitationStyle.Render("▸ " + label)
	} else {
		label = citationLabelStyle.Render("  " + label)
	}
	wrapWidth := width - 4
	if wrapWidth < 10 {
		wrapWidth = 10
	}
	preview := strings.Split(wordwrap.String(strings.TrimSpace(c.Text), wrapWidth), "\n")
	if len(preview) > previewLines {
		preview = preview[:previewLines]
		last := preview[previewLines-1]
		preview[previewLines-1] = truncate.StringWithTail(last+" …", uint(wrapWidth), "…")
	}
	return label + "\n" + helperStyle.Render(indentMultiline(strings.Join(preview, "\n"), "    "))
}

func indentMultiline(value, prefix string) string {
	lines := strings.Split(value, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
