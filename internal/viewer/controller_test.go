package viewer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csheth/citejump/internal/channel"
	"github.com/csheth/citejump/internal/citation"
	"github.com/csheth/citejump/internal/document"
	"github.com/csheth/citejump/internal/match"
)

type call struct {
	op     string
	region match.Region
	index  int
}

type recorder struct {
	calls []call
}

func (r *recorder) Clear(region match.Region) {
	r.calls = append(r.calls, call{op: "clear", region: region})
}

func (r *recorder) Apply(region match.Region, _ []match.Fragment) {
	r.calls = append(r.calls, call{op: "apply", region: region})
}

func (r *recorder) ScrollTo(i int) {
	r.calls = append(r.calls, call{op: "scroll", index: i})
}

func (r *recorder) ops() []string {
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.op
	}
	return out
}

type fakeSource struct {
	pages      map[int][]string
	renders    int
	extracts   int
	failRender map[int]bool
}

func (s *fakeSource) PageCount() int { return len(s.pages) }

func (s *fakeSource) PageFragments(_ context.Context, n int) ([]match.Fragment, error) {
	s.extracts++
	lines, ok := s.pages[n]
	if !ok {
		return nil, document.ErrPageOutOfRange
	}
	frags := make([]match.Fragment, len(lines))
	offset := 0
	for i, line := range lines {
		frags[i] = match.Fragment{Text: line, Start: offset, End: offset + len(line)}
		offset += len(line) + 1
	}
	return frags, nil
}

func (s *fakeSource) RenderPage(ctx context.Context, n int, zoom float64) (document.Raster, error) {
	s.renders++
	if s.failRender[n] {
		return document.Raster{}, fmt.Errorf("render page %d failed", n)
	}
	frags, err := s.PageFragments(ctx, n)
	if err != nil {
		return document.Raster{}, err
	}
	return document.Layout(n, frags, zoom), nil
}

func newSource() *fakeSource {
	return &fakeSource{pages: map[int][]string{
		1: {"Title page", "Authors"},
		2: {"Background text", "nothing relevant"},
		3: {"Machine learning is", "a branch of AI", "used for pattern", "recognition tasks"},
		4: {"Results show that", "attention mechanisms", "outperform recurrence", "on long sequences"},
		5: {},
	}, failRender: map[int]bool{}}
}

func testBundle() citation.Bundle {
	return citation.Build([]citation.Citation{
		{OriginIndex: 10, DocumentID: "paper.pdf", PageAddress: "3 (¶1.1)", Text: "Machine learning is a branch of AI used for pattern recognition"},
		{OriginIndex: 11, DocumentID: "paper.pdf", PageAddress: "4", Text: "attention mechanisms outperform recurrence on long sequences"},
		{OriginIndex: 12, DocumentID: "paper.pdf", PageAddress: "3", Text: "used for pattern recognition tasks"},
		{OriginIndex: 13, DocumentID: "paper.pdf", PageAddress: "unknown", Text: "Title page Authors here"},
	}, "paper.pdf", 10)
}

// open drives a controller to Ready and applies the first page.
func open(t *testing.T, c *Controller, src *fakeSource, target channel.Target, bundle citation.Bundle, bundleErr error) {
	t.Helper()
	c.Open(target)
	_, ready := c.DocumentLoaded(src.PageCount(), nil)
	if c.NeedsBundle() {
		require.False(t, ready)
		req, ok := c.BundleLoaded(bundle, bundleErr)
		require.True(t, ok)
		require.True(t, c.PageLoaded(Load(context.Background(), src, req)))
		return
	}
	require.True(t, ready)
	require.True(t, c.PageLoaded(Load(context.Background(), src, PageRequest{Seq: c.seq, Page: c.Page(), Zoom: c.Zoom(), Render: true})))
}

func TestOpenInlineBundleGoesToActivePage(t *testing.T) {
	t.Parallel()

	src := newSource()
	h := &recorder{}
	c := New(h, Options{})
	b := testBundle()

	c.Open(channel.Target{File: "paper.pdf", Bundle: &b, Active: 1})
	assert.Equal(t, StateLoading, c.State())
	assert.False(t, c.NeedsBundle())

	req, ok := c.DocumentLoaded(src.PageCount(), nil)
	require.True(t, ok)
	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, 3, req.Page)
	assert.True(t, req.Render)

	require.True(t, c.PageLoaded(Load(context.Background(), src, req)))
	assert.Equal(t, match.TierBoundary, c.Region().Tier)
	assert.Equal(t, []int{0, 1, 2, 3}, c.Region().Indices)
	assert.Equal(t, []string{"apply", "scroll"}, h.ops())
	assert.Len(t, c.Raster().Lines, 4)
}

func TestOpenWaitsForBothDocumentAndBundle(t *testing.T) {
	t.Parallel()

	src := newSource()
	c := New(&recorder{}, Options{})
	c.Open(channel.Target{File: "paper.pdf", Handle: channel.Handle{Key: "k"}})
	require.True(t, c.NeedsBundle())

	_, ok := c.BundleLoaded(testBundle().WithActive(2), nil)
	assert.False(t, ok)
	assert.Equal(t, StateLoading, c.State())

	req, ok := c.DocumentLoaded(src.PageCount(), nil)
	require.True(t, ok)
	assert.Equal(t, 4, req.Page)

	_, ok = c.DocumentLoaded(src.PageCount(), nil)
	assert.False(t, ok, "duplicate load is ignored")
}

func TestBundleMissShowsNoticeAndPageOne(t *testing.T) {
	t.Parallel()

	src := newSource()
	h := &recorder{}
	c := New(h, Options{})
	open(t, c, src, channel.Target{File: "paper.pdf", Handle: channel.Handle{Key: "k"}}, citation.Bundle{}, channel.ErrNotFound)

	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, NoCitationNotice, c.Notice())
	assert.Equal(t, 1, c.Page())
	assert.True(t, c.Region().Empty())
	assert.Empty(t, h.calls)

	_, ok := c.SelectCitation(1)
	assert.False(t, ok)
}

func TestBundleDecodeFailureIsAlsoAMiss(t *testing.T) {
	t.Parallel()

	src := newSource()
	c := New(&recorder{}, Options{})
	open(t, c, src, channel.Target{File: "paper.pdf", Handle: channel.Handle{Key: "k"}}, citation.Bundle{}, errors.New("decode entry: bad json"))
	assert.Equal(t, NoCitationNotice, c.Notice())
}

func TestSelectCitationOnSamePageSkipsRender(t *testing.T) {
	t.Parallel()

	src := newSource()
	h := &recorder{}
	c := New(h, Options{})
	b := testBundle()
	open(t, c, src, channel.Target{File: "paper.pdf", Bundle: &b}, b, nil)
	first := c.Region()
	rendersBefore := src.renders

	req, ok := c.SelectCitation(3)
	require.True(t, ok)
	assert.False(t, req.Render)
	assert.Equal(t, 3, req.Page)

	res := Load(context.Background(), src, req)
	require.True(t, c.PageLoaded(res))
	assert.Equal(t, rendersBefore, src.renders)
	assert.Len(t, c.Raster().Lines, 4, "raster is kept")

	assert.Equal(t, []string{"apply", "scroll", "clear", "apply", "scroll"}, h.ops())
	assert.Equal(t, first, h.calls[2].region, "previous region is cleared")
	assert.Equal(t, []int{2, 3}, c.Region().Indices)
	active, _ := c.Active()
	assert.Equal(t, 3, active.DisplayIndex)
}

func TestSelectCitationOnOtherPageRenders(t *testing.T) {
	t.Parallel()

	src := newSource()
	c := New(&recorder{}, Options{})
	b := testBundle()
	open(t, c, src, channel.Target{File: "paper.pdf", Bundle: &b}, b, nil)

	req, ok := c.SelectCitation(2)
	require.True(t, ok)
	assert.True(t, req.Render)
	assert.Equal(t, 4, req.Page)
	require.True(t, c.PageLoaded(Load(context.Background(), src, req)))
	assert.Equal(t, match.TierBoundary, c.Region().Tier)

	req, ok = c.SelectCitation(4)
	require.True(t, ok)
	assert.Equal(t, 1, req.Page, "unparseable address opens page 1")

	_, ok = c.SelectCitation(9)
	assert.False(t, ok)
}

func TestSelectAfterUnappliedPageChangeStillRenders(t *testing.T) {
	t.Parallel()

	src := newSource()
	c := New(&recorder{}, Options{})
	b := testBundle()
	open(t, c, src, channel.Target{File: "paper.pdf", Bundle: &b}, b, nil)
	require.Equal(t, 3, c.Raster().Page)

	pending, ok := c.NextPage()
	require.True(t, ok)
	require.True(t, pending.Render)

	// The page 4 render never lands; selecting a page 4 citation replaces it.
	req, ok := c.SelectCitation(2)
	require.True(t, ok)
	assert.Equal(t, 4, req.Page)
	assert.True(t, req.Render, "raster on screen is still page 3")

	require.True(t, c.PageLoaded(Load(context.Background(), src, req)))
	assert.Equal(t, c.Page(), c.Raster().Page)
	assert.Equal(t, c.Zoom(), c.Raster().Zoom)
	assert.Len(t, c.Raster().Lines, len(c.Fragments()))
	assert.Equal(t, match.TierBoundary, c.Region().Tier)

	req, ok = c.SelectCitation(2)
	require.True(t, ok)
	assert.False(t, req.Render, "raster caught up")
}

func TestSelectAfterUnappliedZoomStillRenders(t *testing.T) {
	t.Parallel()

	src := newSource()
	c := New(&recorder{}, Options{Zoom: 1})
	b := testBundle()
	open(t, c, src, channel.Target{File: "paper.pdf", Bundle: &b}, b, nil)

	_, ok := c.SetZoom(2)
	require.True(t, ok)

	req, ok := c.SelectCitation(3)
	require.True(t, ok)
	assert.Equal(t, 3, req.Page)
	assert.True(t, req.Render)
	assert.Equal(t, 2.0, req.Zoom)

	require.True(t, c.PageLoaded(Load(context.Background(), src, req)))
	assert.Equal(t, c.Page(), c.Raster().Page)
	assert.Equal(t, c.Zoom(), c.Raster().Zoom)
}

func TestSelectAfterUnappliedReloadStillRenders(t *testing.T) {
	t.Parallel()

	src := newSource()
	c := New(&recorder{}, Options{})
	b := testBundle()
	open(t, c, src, channel.Target{File: "paper.pdf", Bundle: &b}, b, nil)

	_, ok := c.Reload(src.PageCount())
	require.True(t, ok)
	req, ok := c.SelectCitation(3)
	require.True(t, ok)
	assert.True(t, req.Render)
}

func TestStaleResultsAreDropped(t *testing.T) {
	t.Parallel()

	src := newSource()
	h := &recorder{}
	c := New(h, Options{})
	b := testBundle()
	open(t, c, src, channel.Target{File: "paper.pdf", Bundle: &b}, b, nil)

	older, ok := c.NextPage()
	require.True(t, ok)
	newer, ok := c.NextPage()
	require.True(t, ok)
	assert.Equal(t, 5, newer.Page)

	assert.False(t, c.PageLoaded(Load(context.Background(), src, older)))
	assert.Equal(t, 5, c.Page())
	calls := len(h.calls)
	assert.True(t, c.PageLoaded(Load(context.Background(), src, newer)))
	assert.Greater(t, len(h.calls), calls)
}

func TestEmptyOrFailedPageSkipsMatcher(t *testing.T) {
	t.Parallel()

	src := newSource()
	src.failRender[4] = true
	h := &recorder{}
	c := New(h, Options{})
	b := testBundle()
	open(t, c, src, channel.Target{File: "paper.pdf", Bundle: &b}, b, nil)

	req, ok := c.GoToPage(5)
	require.True(t, ok)
	require.True(t, c.PageLoaded(Load(context.Background(), src, req)))
	assert.True(t, c.Unavailable())
	assert.True(t, c.Region().Empty())
	assert.Equal(t, []string{"apply", "scroll", "clear"}, h.ops())

	req, ok = c.GoToPage(4)
	require.True(t, ok)
	res := Load(context.Background(), src, req)
	require.Error(t, res.Err)
	require.True(t, c.PageLoaded(res))
	assert.True(t, c.Unavailable())
	assert.Equal(t, []string{"apply", "scroll", "clear"}, h.ops())
}

func TestPageNavigationClamps(t *testing.T) {
	t.Parallel()

	src := newSource()
	c := New(&recorder{}, Options{})
	b := testBundle().WithActive(4)
	open(t, c, src, channel.Target{File: "paper.pdf", Bundle: &b}, b, nil)
	require.Equal(t, 1, c.Page())

	_, ok := c.PrevPage()
	assert.False(t, ok)

	req, ok := c.GoToPage(99)
	require.True(t, ok)
	assert.Equal(t, 5, req.Page)
	_, ok = c.NextPage()
	assert.False(t, ok)
}

func TestPageOffsetAndClamp(t *testing.T) {
	t.Parallel()

	src := newSource()
	c := New(&recorder{}, Options{PageOffset: 1})
	b := testBundle().WithActive(2)
	c.Open(channel.Target{File: "paper.pdf", Bundle: &b})
	req, ok := c.DocumentLoaded(src.PageCount(), nil)
	require.True(t, ok)
	assert.Equal(t, 5, req.Page)

	c = New(&recorder{}, Options{PageOffset: 10})
	c.Open(channel.Target{File: "paper.pdf", Bundle: &b})
	req, ok = c.DocumentLoaded(src.PageCount(), nil)
	require.True(t, ok)
	assert.Equal(t, 5, req.Page)
}

func TestSetZoom(t *testing.T) {
	t.Parallel()

	src := newSource()
	c := New(&recorder{}, Options{Zoom: 1})
	b := testBundle()
	open(t, c, src, channel.Target{File: "paper.pdf", Bundle: &b}, b, nil)

	req, ok := c.SetZoom(2)
	require.True(t, ok)
	assert.True(t, req.Render)
	assert.Equal(t, 2.0, req.Zoom)
	assert.Equal(t, c.Page(), req.Page)

	_, ok = c.SetZoom(2)
	assert.False(t, ok)

	c.SetZoom(100)
	assert.Equal(t, MaxZoom, c.Zoom())
	c.SetZoom(0.01)
	assert.Equal(t, MinZoom, c.Zoom())
}

func TestNextCitationWraps(t *testing.T) {
	t.Parallel()

	src := newSource()
	c := New(&recorder{}, Options{})
	b := testBundle()
	open(t, c, src, channel.Target{File: "paper.pdf", Bundle: &b}, b, nil)

	_, ok := c.NextCitation(-1)
	require.True(t, ok)
	active, _ := c.Active()
	assert.Equal(t, 4, active.DisplayIndex)

	_, ok = c.NextCitation(1)
	require.True(t, ok)
	active, _ = c.Active()
	assert.Equal(t, 1, active.DisplayIndex)
}

func TestDocumentFailure(t *testing.T) {
	t.Parallel()

	c := New(&recorder{}, Options{})
	b := testBundle()
	c.Open(channel.Target{File: "paper.pdf", Bundle: &b})
	_, ok := c.DocumentLoaded(0, errors.New("not a pdf"))
	assert.False(t, ok)
	assert.Equal(t, StateReady, c.State())
	assert.True(t, c.Unavailable())

	_, ok = c.NextPage()
	assert.False(t, ok)
	_, ok = c.SelectCitation(2)
	assert.False(t, ok)
}

func TestReload(t *testing.T) {
	t.Parallel()

	src := newSource()
	c := New(&recorder{}, Options{})
	b := testBundle()
	open(t, c, src, channel.Target{File: "paper.pdf", Bundle: &b}, b, nil)

	req, ok := c.Reload(2)
	require.True(t, ok)
	assert.Equal(t, 2, req.Page)
	assert.True(t, req.Render)
}

func TestCloseIgnoresLaterCalls(t *testing.T) {
	t.Parallel()

	src := newSource()
	h := &recorder{}
	c := New(h, Options{})
	b := testBundle()
	open(t, c, src, channel.Target{File: "paper.pdf", Bundle: &b}, b, nil)

	req, ok := c.NextPage()
	require.True(t, ok)
	c.Close()
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, "clear", h.ops()[len(h.ops())-1])

	assert.False(t, c.PageLoaded(Load(context.Background(), src, req)))
	_, ok = c.NextPage()
	assert.False(t, ok)
	_, ok = c.SetZoom(2)
	assert.False(t, ok)
	c.Open(channel.Target{File: "paper.pdf", Bundle: &b})
	assert.Equal(t, StateClosed, c.State())
	c.Close()
}

type fakeRetriever struct {
	bundle citation.Bundle
	err    error
	calls  int
}

func (r *fakeRetriever) Retrieve(context.Context, channel.Handle) (citation.Bundle, error) {
	r.calls++
	return r.bundle, r.err
}

func TestFetchBundle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := testBundle()

	r := &fakeRetriever{bundle: b}
	got, err := FetchBundle(ctx, r, channel.Target{Bundle: &b})
	require.NoError(t, err)
	assert.Equal(t, b, got)
	assert.Zero(t, r.calls)

	got, err = FetchBundle(ctx, r, channel.Target{Handle: channel.Handle{Key: "k"}, Active: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, got.ActiveDisplayIndex)
	assert.Equal(t, 1, r.calls)

	_, err = FetchBundle(ctx, nil, channel.Target{Handle: channel.Handle{Key: "k"}})
	assert.ErrorIs(t, err, channel.ErrNotFound)

	_, err = FetchBundle(ctx, &fakeRetriever{err: channel.ErrNotFound}, channel.Target{Handle: channel.Handle{Key: "k"}})
	assert.ErrorIs(t, err, channel.ErrNotFound)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "closed", StateClosed.String())
}
