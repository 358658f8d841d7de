// Package viewer sequences what the viewer shows: which page, which citation
// is active, and which fragments are highlighted.
//
// The Controller is a plain state machine driven by a single goroutine. It
// never performs I/O itself; every page change produces a PageRequest that the
// host executes (usually with Load) and feeds back through PageLoaded. Results
// carrying an outdated sequence number are dropped, so a newer request always
// supersedes older ones.
package viewer

import (
	"context"
	"errors"

	"github.com/csheth/citejump/internal/address"
	"github.com/csheth/citejump/internal/channel"
	"github.com/csheth/citejump/internal/citation"
	"github.com/csheth/citejump/internal/document"
	"github.com/csheth/citejump/internal/logger"
	"github.com/csheth/citejump/internal/match"
)

// NoCitationNotice is shown when the bundle could not be delivered.
const NoCitationNotice = "no citation data for this document"

const (
	MinZoom     = 0.5
	MaxZoom     = 3.0
	DefaultZoom = 1.0
)

type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

// Source is the document collaborator.
type Source interface {
	PageCount() int
	PageFragments(ctx context.Context, n int) ([]match.Fragment, error)
	RenderPage(ctx context.Context, n int, zoom float64) (document.Raster, error)
}

// Retriever fetches a published bundle.
type Retriever interface {
	Retrieve(ctx context.Context, h channel.Handle) (citation.Bundle, error)
}

// Highlighter applies regions to whatever displays the page.
type Highlighter interface {
	Clear(region match.Region)
	Apply(region match.Region, fragments []match.Fragment)
	ScrollTo(fragment int)
}

// PageRequest asks the host to load a page. Render is false when only the
// text layer is needed to recompute a highlight.
type PageRequest struct {
	Seq    int
	Page   int
	Zoom   float64
	Render bool
}

// PageResult is the outcome of a PageRequest.
type PageResult struct {
	Seq       int
	Page      int
	Render    bool
	Raster    document.Raster
	Fragments []match.Fragment
	Err       error
}

type Options struct {
	Matcher *match.Matcher
	// PageOffset is added to every parsed page address before clamping.
	PageOffset int
	Zoom       float64
	Logger     logger.Logger
}

// Controller is the viewer state machine. It is not safe for concurrent use.
type Controller struct {
	highlighter Highlighter
	matcher     *match.Matcher
	pageOffset  int
	log         logger.Logger

	state  State
	target channel.Target

	bundle       citation.Bundle
	bundleLoaded bool
	docLoaded    bool
	pageCount    int
	notice       string

	page        int
	zoom        float64
	seq         int
	fragments   []match.Fragment
	raster      document.Raster
	region      match.Region
	unavailable bool

	// rendering is set while the latest render request has not been applied.
	// A text-only request issued meanwhile must still render, since it
	// supersedes the pending one.
	rendering bool
}

func New(h Highlighter, opts Options) *Controller {
	if opts.Matcher == nil {
		opts.Matcher = match.New(match.DefaultOptions())
	}
	zoom := opts.Zoom
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	return &Controller{
		highlighter: h,
		matcher:     opts.Matcher,
		pageOffset:  opts.PageOffset,
		log:         logger.Component(opts.Logger, "viewer"),
		zoom:        clampZoom(zoom),
		page:        1,
	}
}

// Open starts loading target. An inline bundle is taken as delivered.
func (c *Controller) Open(target channel.Target) {
	if c.state == StateClosed {
		return
	}
	c.state = StateLoading
	c.target = target
	c.bundleLoaded = false
	c.docLoaded = false
	c.notice = ""
	if target.Bundle != nil {
		c.bundle = *target.Bundle
		c.bundleLoaded = true
	}
	c.log.Debug("opening", "file", target.File, "inline", target.Inline())
}

// NeedsBundle reports whether the bundle still has to be fetched.
func (c *Controller) NeedsBundle() bool {
	return c.state == StateLoading && !c.bundleLoaded
}

// DocumentLoaded records the page count. It returns the first page request
// once the bundle has arrived too.
func (c *Controller) DocumentLoaded(pageCount int, err error) (PageRequest, bool) {
	if c.state != StateLoading || c.docLoaded {
		return PageRequest{}, false
	}
	c.docLoaded = true
	if err != nil {
		c.log.Warn("document unavailable", "file", c.target.File, "error", err)
		c.unavailable = true
		pageCount = 0
	}
	c.pageCount = pageCount
	return c.maybeReady()
}

// BundleLoaded records the retrieved bundle. A failed retrieval is not fatal:
// the viewer shows the document without citations.
func (c *Controller) BundleLoaded(bundle citation.Bundle, err error) (PageRequest, bool) {
	if c.state != StateLoading || c.bundleLoaded {
		return PageRequest{}, false
	}
	c.bundleLoaded = true
	if err != nil {
		if !errors.Is(err, channel.ErrNotFound) {
			c.log.Warn("bundle retrieval failed", "error", err)
		}
		c.notice = NoCitationNotice
		c.bundle = citation.Bundle{}
	} else {
		c.bundle = bundle
	}
	return c.maybeReady()
}

func (c *Controller) maybeReady() (PageRequest, bool) {
	if !c.docLoaded || !c.bundleLoaded {
		return PageRequest{}, false
	}
	c.state = StateReady
	c.page = c.initialPage()
	c.log.Debug("ready", "page", c.page, "pages", c.pageCount, "citations", c.bundle.Len())
	if c.pageCount == 0 {
		return PageRequest{}, false
	}
	return c.request(true), true
}

func (c *Controller) initialPage() int {
	active, ok := c.bundle.Active()
	if !ok {
		return 1
	}
	return c.pageFor(active)
}

func (c *Controller) pageFor(cit citation.Citation) int {
	addr := address.Parse(cit.PageAddress)
	if !addr.HasPage {
		c.log.Debug("page address not navigable", "address", cit.PageAddress)
	}
	return c.clampPage(addr.Page + c.pageOffset)
}

func (c *Controller) clampPage(n int) int {
	if n < 1 {
		return 1
	}
	if c.pageCount > 0 && n > c.pageCount {
		return c.pageCount
	}
	return n
}

func (c *Controller) request(render bool) PageRequest {
	if !render && !c.rasterCurrent() {
		render = true
	}
	c.rendering = render
	c.seq++
	return PageRequest{Seq: c.seq, Page: c.page, Zoom: c.zoom, Render: render}
}

// SelectCitation makes the citation with the given display index active. A
// citation on the current page only recomputes the highlight.
func (c *Controller) SelectCitation(display int) (PageRequest, bool) {
	if c.state != StateReady {
		return PageRequest{}, false
	}
	cit, ok := c.bundle.ByDisplay(display)
	if !ok {
		return PageRequest{}, false
	}
	c.bundle = c.bundle.WithActive(display)
	if c.pageCount == 0 {
		return PageRequest{}, false
	}
	page := c.pageFor(cit)
	if page == c.page {
		return c.request(false), true
	}
	c.page = page
	return c.request(true), true
}

// rasterCurrent reports whether the applied raster shows the current page at
// the current zoom with no render still in flight.
func (c *Controller) rasterCurrent() bool {
	return !c.rendering && !c.unavailable &&
		c.raster.Page == c.page && c.raster.Zoom == c.zoom
}

// NextCitation cycles the active citation by delta, wrapping around.
func (c *Controller) NextCitation(delta int) (PageRequest, bool) {
	n := c.bundle.Len()
	if n == 0 {
		return PageRequest{}, false
	}
	next := ((c.bundle.ActiveDisplayIndex-1+delta)%n+n)%n + 1
	return c.SelectCitation(next)
}

func (c *Controller) NextPage() (PageRequest, bool) {
	return c.GoToPage(c.page + 1)
}

func (c *Controller) PrevPage() (PageRequest, bool) {
	return c.GoToPage(c.page - 1)
}

// GoToPage moves to page n, clamped to the document. Moving to the current
// page is a no-op.
func (c *Controller) GoToPage(n int) (PageRequest, bool) {
	if c.state != StateReady || c.pageCount == 0 {
		return PageRequest{}, false
	}
	n = c.clampPage(n)
	if n == c.page {
		return PageRequest{}, false
	}
	c.page = n
	return c.request(true), true
}

// SetZoom changes the zoom level, clamped to [MinZoom, MaxZoom], and
// re-renders the current page.
func (c *Controller) SetZoom(level float64) (PageRequest, bool) {
	if c.state == StateClosed {
		return PageRequest{}, false
	}
	level = clampZoom(level)
	if level == c.zoom {
		return PageRequest{}, false
	}
	c.zoom = level
	if c.state != StateReady || c.pageCount == 0 {
		return PageRequest{}, false
	}
	return c.request(true), true
}

func clampZoom(level float64) float64 {
	switch {
	case level < MinZoom:
		return MinZoom
	case level > MaxZoom:
		return MaxZoom
	default:
		return level
	}
}

// Reload re-renders the current page, used after the file changed on disk.
func (c *Controller) Reload(pageCount int) (PageRequest, bool) {
	if c.state != StateReady {
		return PageRequest{}, false
	}
	c.pageCount = pageCount
	c.unavailable = pageCount == 0
	if pageCount == 0 {
		return PageRequest{}, false
	}
	c.page = c.clampPage(c.page)
	return c.request(true), true
}

// PageLoaded applies a page result. It returns false when the result was
// superseded by a newer request and has been dropped.
func (c *Controller) PageLoaded(res PageResult) bool {
	if c.state != StateReady || res.Seq != c.seq {
		return false
	}
	c.clearHighlight()
	if res.Render {
		c.rendering = false
	}

	if res.Err != nil || len(res.Fragments) == 0 {
		if res.Err != nil {
			c.log.Warn("page unavailable", "page", res.Page, "error", res.Err)
		}
		c.unavailable = true
		c.fragments = nil
		if res.Render {
			c.raster = res.Raster
		}
		return true
	}

	c.unavailable = false
	c.fragments = res.Fragments
	if res.Render {
		c.raster = res.Raster
	}
	c.applyHighlight()
	return true
}

func (c *Controller) clearHighlight() {
	if c.highlighter != nil && !c.region.Empty() {
		c.highlighter.Clear(c.region)
	}
	c.region = match.Region{}
}

func (c *Controller) applyHighlight() {
	active, ok := c.bundle.Active()
	if !ok {
		return
	}
	c.region = c.matcher.Locate(c.fragments, active.Text)
	if c.region.Empty() {
		return
	}
	c.log.Debug("highlight", "page", c.page, "citation", active.DisplayIndex, "tier", c.region.Tier.String(), "fragments", len(c.region.Indices))
	if c.highlighter == nil {
		return
	}
	c.highlighter.Apply(c.region, c.fragments)
	if first, ok := c.region.First(); ok {
		c.highlighter.ScrollTo(first)
	}
}

// Close ends the viewer; every later call is ignored.
func (c *Controller) Close() {
	if c.state == StateClosed {
		return
	}
	c.clearHighlight()
	c.state = StateClosed
	c.fragments = nil
}

// Load executes req against src.
func Load(ctx context.Context, src Source, req PageRequest) PageResult {
	res := PageResult{Seq: req.Seq, Page: req.Page, Render: req.Render}
	if req.Render {
		raster, err := src.RenderPage(ctx, req.Page, req.Zoom)
		if err != nil {
			res.Err = err
			return res
		}
		res.Raster = raster
	}
	frags, err := src.PageFragments(ctx, req.Page)
	if err != nil {
		res.Err = err
		return res
	}
	res.Fragments = frags
	return res
}

// FetchBundle resolves the bundle for target: inline bundles are returned
// directly, handles go through r.
func FetchBundle(ctx context.Context, r Retriever, target channel.Target) (citation.Bundle, error) {
	if target.Bundle != nil {
		return *target.Bundle, nil
	}
	if r == nil || target.Handle.IsZero() {
		return citation.Bundle{}, channel.ErrNotFound
	}
	bundle, err := r.Retrieve(ctx, target.Handle)
	if err != nil {
		return citation.Bundle{}, err
	}
	if target.Active > 0 {
		bundle = bundle.WithActive(target.Active)
	}
	return bundle, nil
}

func (c *Controller) State() State { return c.state }
func (c *Controller) Target() channel.Target { return c.target }
func (c *Controller) Page() int { return c.page }
func (c *Controller) PageCount() int { return c.pageCount }
func (c *Controller) Zoom() float64 { return c.zoom }
func (c *Controller) Bundle() citation.Bundle { return c.bundle }
func (c *Controller) Notice() string { return c.notice }
func (c *Controller) Region() match.Region { return c.region }
func (c *Controller) Fragments() []match.Fragment { return c.fragments }
func (c *Controller) Raster() document.Raster { return c.raster }
func (c *Controller) Unavailable() bool { return c.unavailable }
func (c *Controller) Active() (citation.Citation, bool) { return c.bundle.Active() }
