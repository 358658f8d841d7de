package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/csheth/citejump/internal/viewer"
)

func (m *model) View() string {
	if m.ctrl.State() == viewer.StateClosed {
		return ""
	}
	m.refreshViewportIfDirty()
	parts := []string{m.headerView(), m.bodyView(), m.statusView()}
	if m.helpVisible {
		parts = append(parts, m.keyLegendView())
	}
	return joinNonEmpty(parts)
}

func (m *model) headerView() string {
	name := m.config.Target.File
	if m.doc != nil {
		name = m.doc.Name()
	}
	title := titleStyle.Render(truncate.StringWithTail(name, 48, "…"))
	if m.ctrl.State() != viewer.StateReady {
		return title
	}
	stats := []string{
		pageLabel(m.ctrl.Page(), m.ctrl.PageCount()),
		fmt.Sprintf("zoom %.2fx", m.ctrl.Zoom()),
	}
	if region := m.ctrl.Region(); !region.Empty() {
		stats = append(stats, "match "+region.Tier.String())
	}
	if n := len(m.running); n > 0 {
		stats = append(stats, fmt.Sprintf("jobs %d", n))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", statusBarStyle.Render(strings.Join(stats, "  •  ")))
}

func pageLabel(page, count int) string {
	if count == 0 {
		return "page -/-"
	}
	return fmt.Sprintf("page %d/%d", page, count)
}

func (m *model) bodyView() string {
	page := m.pageView()
	sidebar := m.sidebarView()
	if sidebar == "" {
		return page
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, " ", page)
}

func (m *model) pageView() string {
	switch {
	case m.ctrl.State() == viewer.StateLoading:
		return fmt.Sprintf("%s %s", m.spinner.View(), helperStyle.Render(loadingMessage))
	case m.ctrl.PageCount() == 0:
		return errorStyle.Render("Document unavailable.")
	case m.ctrl.Unavailable():
		return helperStyle.Render(fmt.Sprintf("Page %d has no text layer to show.", m.ctrl.Page()))
	default:
		return m.viewport.View()
	}
}

func (m *model) sidebarView() string {
	width := m.layout.sidebarWidth
	bundle := m.ctrl.Bundle()
	if width == 0 || bundle.Len() == 0 {
		return ""
	}
	entries := []string{sectionHeaderStyle.Render(fmt.Sprintf("Citations (%d)", bundle.Len()))}
	for _, c := range bundle.Citations {
		entries = append(entries, citationEntry(c, width, c.DisplayIndex == bundle.ActiveDisplayIndex))
	}
	return sidebarStyle.Width(width).Render(strings.Join(entries, "\n"))
}

func (m *model) statusView() string {
	var parts []string
	if m.errorMessage != "" {
		parts = append(parts, errorStyle.Render(m.errorMessage))
	}
	if m.infoMessage != "" {
		message := m.infoMessage
		if m.loading() && m.ctrl.State() != viewer.StateLoading {
			message = fmt.Sprintf("%s %s", m.spinner.View(), message)
		}
		parts = append(parts, helperStyle.Render(message))
	}
	if !m.helpVisible {
		parts = append(parts, helperStyle.Render("? keys • q quit"))
	}
	return strings.Join(parts, "\n")
}

func joinNonEmpty(parts []string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, "\n\n")
}

type keyHint struct {
	Key         string
	Description string
}

var keyHints = []keyHint{
	{"n/→", "Next page"},
	{"p/←", "Previous page"},
	{"home/end", "First or last page"},
	{"+/-", "Zoom"},
	{"tab", "Next citation"},
	{"shift+tab", "Previous citation"},
	{"1-9", "Select citation"},
	{"↑/↓", "Scroll"},
	{"q", "Quit"},
}

func (m *model) keyLegendView() string {
	rows := []string{sectionHeaderStyle.Render("Keys")}
	const columns = 3
	for i := 0; i < len(keyHints); i += columns {
		end := i + columns
		if end > len(keyHints) {
			end = len(keyHints)
		}
		var cells []string
		for _, hint := range keyHints[i:end] {
			key := keyStyle.Render(hint.Key)
			desc := keyDescStyle.Render(" " + hint.Description + "  ")
			cells = append(cells, lipgloss.JoinHorizontal(lipgloss.Top, key, desc))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return legendBoxStyle.Render(strings.Join(rows, "\n"))
}
