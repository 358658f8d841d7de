package tui

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/csheth/citejump/internal/channel"
	"github.com/csheth/citejump/internal/document"
	"github.com/csheth/citejump/internal/logger"
	"github.com/csheth/citejump/internal/viewer"
)

// Config wires runtime options into the viewer program.
type Config struct {
	Target    channel.Target
	Retriever viewer.Retriever
	Viewer    viewer.Options
	// OpenDocument opens Target.File. It runs off the update loop, so it may
	// download. Defaults to document.Open on the file as given.
	OpenDocument func(ref string) (Document, error)
	// Watch reloads the page when the file changes on disk.
	Watch   bool
	Context context.Context
	Logger  logger.Logger
}

// New returns a tea.Model ready to be mounted into a Program.
func New(config Config) tea.Model {
	if config.Context == nil {
		config.Context = context.Background()
	}
	log := logger.Component(config.Logger, "tui")
	if config.OpenDocument == nil {
		config.OpenDocument = func(ref string) (Document, error) {
			doc, err := document.Open(ref, config.Logger)
			if err != nil {
				return nil, err
			}
			return doc, nil
		}
	}
	if config.Viewer.Logger == nil {
		config.Viewer.Logger = config.Logger
	}

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true

	highlights := newPageHighlights()
	ctrl := viewer.New(highlights, config.Viewer)
	ctrl.Open(config.Target)

	return &model{
		config:      config,
		log:         log,
		ctrl:        ctrl,
		highlights:  highlights,
		jobs:        newJobBus(config.Context, config.Logger),
		running:     map[string]jobSnapshot{},
		spinner:     spin,
		viewport:    vp,
		layout:      newPageLayout(),
		infoMessage: loadingMessage,
	}
}

type model struct {
	config     Config
	log        logger.Logger
	ctrl       *viewer.Controller
	highlights *pageHighlights
	doc        Document
	jobs       *jobBus
	running    map[string]jobSnapshot

	spinner  spinner.Model
	viewport viewport.Model
	layout   pageLayout

	lineOffsets   map[int]int
	viewportDirty bool
	infoMessage   string
	errorMessage  string
	helpVisible   bool
	stopWatch     context.CancelFunc
	changes       <-chan struct{}
}

func (m *model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.spinner.Tick,
		m.jobs.Start(jobKindOpen, openDocumentJob(m.config.OpenDocument, m.config.Target.File)),
	}
	if m.ctrl.NeedsBundle() {
		cmds = append(cmds, m.jobs.Start(jobKindBundle, fetchBundleJob(m.config.Retriever, m.config.Target)))
	}
	return tea.Batch(cmds...)
}

func (m *model) loading() bool {
	return m.ctrl.State() == viewer.StateLoading || len(m.running) > 0
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.loading() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.layout.Update(msg.Width, msg.Height)
		m.viewport.Width = m.layout.viewportWidth
		m.viewport.Height = m.layout.viewportHeight
		m.markViewportDirty()
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case jobSignalMsg:
		m.running[msg.Snapshot.ID] = msg.Snapshot
		return m, nil
	case jobResultEnvelope:
		delete(m.running, msg.Snapshot.ID)
		if msg.Payload == nil {
			return m, nil
		}
		return m.Update(msg.Payload)
	case documentResultMsg:
		return m, m.handleDocument(msg)
	case bundleResultMsg:
		req, ok := m.ctrl.BundleLoaded(msg.bundle, msg.err)
		m.refreshStatus()
		if !ok {
			return m, nil
		}
		return m, m.pageCmd(req)
	case pageResultMsg:
		if m.ctrl.PageLoaded(msg.result) {
			m.refreshStatus()
			m.markViewportDirty()
			m.refreshViewportIfDirty()
		}
		return m, nil
	case documentChangedMsg:
		if m.doc == nil || m.ctrl.State() == viewer.StateClosed {
			return m, nil
		}
		m.infoMessage = "Document changed on disk, reloading…"
		cmds := []tea.Cmd{m.jobs.Start(jobKindReload, reloadDocumentJob(m.doc))}
		if m.changes != nil {
			cmds = append(cmds, waitForChange(m.changes))
		}
		return m, tea.Batch(cmds...)
	case reloadResultMsg:
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("reload failed: %v", msg.err)
		}
		req, ok := m.ctrl.Reload(msg.pageCount)
		m.refreshStatus()
		if !ok {
			m.markViewportDirty()
			return m, nil
		}
		return m, m.pageCmd(req)
	}
	return m, nil
}

func (m *model) handleDocument(msg documentResultMsg) tea.Cmd {
	if msg.err != nil {
		m.errorMessage = fmt.Sprintf("open %s: %v", m.config.Target.File, msg.err)
		m.log.Error("open document failed", "file", m.config.Target.File, "error", msg.err)
	}
	pageCount := 0
	if msg.doc != nil {
		m.doc = msg.doc
		pageCount = msg.doc.PageCount()
	}
	req, ok := m.ctrl.DocumentLoaded(pageCount, msg.err)
	m.refreshStatus()
	var cmds []tea.Cmd
	if ok {
		cmds = append(cmds, m.pageCmd(req))
	}
	if m.doc != nil && m.config.Watch {
		cmds = append(cmds, m.startWatch())
	}
	return tea.Batch(cmds...)
}

func (m *model) startWatch() tea.Cmd {
	ctx, cancel := context.WithCancel(m.config.Context)
	changes, err := document.Watch(ctx, m.doc.Path(), m.config.Logger)
	if err != nil {
		cancel()
		m.log.Warn("watch disabled", "path", m.doc.Path(), "error", err)
		return nil
	}
	m.stopWatch = cancel
	m.changes = changes
	return waitForChange(changes)
}

func (m *model) pageCmd(req viewer.PageRequest) tea.Cmd {
	if m.doc == nil {
		return nil
	}
	return tea.Batch(m.spinner.Tick, m.jobs.Start(jobKindPage, loadPageJob(m.doc, req)))
}

func (m *model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	var (
		req viewer.PageRequest
		ok  bool
	)
	switch key.String() {
	case "ctrl+c", "q":
		return m, m.quit()
	case "?":
		m.helpVisible = !m.helpVisible
		return m, nil
	case "n", "right":
		req, ok = m.ctrl.NextPage()
	case "p", "left":
		req, ok = m.ctrl.PrevPage()
	case "home":
		req, ok = m.ctrl.GoToPage(1)
	case "end":
		req, ok = m.ctrl.GoToPage(m.ctrl.PageCount())
	case "+", "=":
		req, ok = m.ctrl.SetZoom(m.ctrl.Zoom() + zoomStep)
	case "-", "_":
		req, ok = m.ctrl.SetZoom(m.ctrl.Zoom() - zoomStep)
	case "tab":
		req, ok = m.ctrl.NextCitation(1)
	case "shift+tab":
		req, ok = m.ctrl.NextCitation(-1)
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		idx, _ := strconv.Atoi(key.String())
		req, ok = m.ctrl.SelectCitation(idx)
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(key)
		return m, cmd
	}
	if !ok {
		return m, nil
	}
	m.refreshStatus()
	return m, m.pageCmd(req)
}

func (m *model) quit() tea.Cmd {
	m.ctrl.Close()
	if m.stopWatch != nil {
		m.stopWatch()
		m.stopWatch = nil
	}
	if m.doc != nil {
		if err := m.doc.Close(); err != nil {
			m.log.Warn("close document", "error", err)
		}
	}
	return tea.Quit
}

// refreshStatus derives the info line from the controller.
func (m *model) refreshStatus() {
	switch {
	case m.ctrl.State() == viewer.StateLoading:
		m.infoMessage = loadingMessage
	case m.ctrl.Notice() != "":
		m.infoMessage = m.ctrl.Notice()
	case m.ctrl.Unavailable():
		m.infoMessage = fmt.Sprintf("Page %d is unavailable.", m.ctrl.Page())
	default:
		region := m.ctrl.Region()
		active, ok := m.ctrl.Active()
		switch {
		case !ok:
			m.infoMessage = ""
		case region.Empty():
			m.infoMessage = fmt.Sprintf("Citation [%d] is not on this page.", active.DisplayIndex)
		case region.Confident():
			m.infoMessage = fmt.Sprintf("Citation [%d] highlighted.", active.DisplayIndex)
		default:
			m.infoMessage = fmt.Sprintf("Citation [%d] approximated (%s match).", active.DisplayIndex, region.Tier)
		}
	}
}

func (m *model) markViewportDirty() {
	m.viewportDirty = true
}

func (m *model) refreshViewportIfDirty() {
	if m.viewportDirty {
		m.refreshViewport()
	}
}

func (m *model) refreshViewport() {
	m.viewportDirty = false
	if m.ctrl.Unavailable() || m.ctrl.State() != viewer.StateReady {
		m.lineOffsets = nil
		m.viewport.SetContent("")
		return
	}
	content, offsets := pageContent(m.ctrl.Raster(), m.highlights, m.viewport.Width)
	m.lineOffsets = offsets
	m.viewport.SetContent(content)
	if fragment, ok := m.highlights.takeScroll(); ok {
		line := offsets[fragment] - m.viewport.Height/3
		if line < 0 {
			line = 0
		}
		m.viewport.SetYOffset(line)
	}
}

var (
	titleStyle          = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	sectionHeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	errorStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helperStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	highlightStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("229"))
	approximateStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("152"))
	statusBarStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6")).Padding(0, 1)
	keyStyle            = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#ffd166")).Padding(0, 1)
	keyDescStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0def4"))
	legendBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#56526e")).Padding(0, 1)
	sidebarStyle        = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, true, false, false).BorderForeground(lipgloss.Color("#56526e")).PaddingRight(1)
	activeCitationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6"))
	citationLabelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("147"))
)
