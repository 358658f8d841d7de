// Package match aligns a citation's quoted text with the text fragments of a
// rendered page and picks the fragments to highlight.
//
// Citation text and page text come from independent extraction passes, so the
// matcher anchors on a handful of words at each end of the quote instead of
// requiring an exact substring. When no anchors can be placed it degrades to
// keyword highlighting, then to a positional default. Later tiers are less
// certain and callers should render them with weaker emphasis.
package match

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Fragment is one positioned piece of page text in reading order.
type Fragment struct {
	Text  string
	Start int
	End   int

	// Geometry is carried through for the renderer; the matcher ignores it.
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Tier records which strategy produced a Region.
type Tier int

const (
	TierNone Tier = iota
	TierBoundary
	TierShrunk
	TierKeyword
	TierPositional
)

func (t Tier) String() string {
	switch t {
	case TierBoundary:
		return "boundary"
	case TierShrunk:
		return "shrunk-boundary"
	case TierKeyword:
		return "keyword"
	case TierPositional:
		return "positional"
	default:
		return "none"
	}
}

// Region is the set of fragments selected for one citation on one page.
// Start and End delimit the matched span inside the matcher's lowercase page
// buffer; for keyword and positional tiers they envelope the selected fragments.
type Region struct {
	Tier    Tier
	Indices []int
	Start   int
	End     int
}

// Empty reports whether nothing should be highlighted.
func (r Region) Empty() bool {
	return len(r.Indices) == 0
}

// Confident reports whether the region came from a boundary tier.
func (r Region) Confident() bool {
	return r.Tier == TierBoundary || r.Tier == TierShrunk
}

// Contains reports whether fragment index i is part of the region.
func (r Region) Contains(i int) bool {
	lo, hi := 0, len(r.Indices)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case r.Indices[mid] == i:
			return true
		case r.Indices[mid] < i:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return false
}

// First returns the lowest selected fragment index, used as the scroll target.
func (r Region) First() (int, bool) {
	if r.Empty() {
		return 0, false
	}
	return r.Indices[0], true
}

// Options tune the matcher. Zero fields fall back to DefaultOptions.
type Options struct {
	// MinTokens is the shortest citation (in whitespace tokens) worth anchoring.
	MinTokens int
	// AnchorTokens is the head/tail anchor size tried first.
	AnchorTokens int
	// ShrinkSizes are the smaller anchor sizes tried, largest first.
	ShrinkSizes []int
	// KeywordMinRunes excludes keywords of this length or shorter.
	KeywordMinRunes int
	MaxKeywords     int
	// PositionalLimit is how many non-empty fragments the last tier marks.
	PositionalLimit int
	StopWords       []string
}

// DefaultStopWords is the keyword-tier stop list. Only words longer than
// KeywordMinRunes can ever matter.
var DefaultStopWords = []string{
	"about", "after", "also", "been", "before", "being", "between", "both",
	"could", "does", "each", "from", "have", "having", "here", "into",
	"more", "most", "much", "must", "only", "other", "over", "same",
	"should", "some", "such", "than", "that", "their", "them", "then",
	"there", "these", "they", "this", "those", "through", "under", "very",
	"were", "what", "when", "where", "which", "while", "will", "with",
	"would", "your",
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		MinTokens:       3,
		AnchorTokens:    5,
		ShrinkSizes:     []int{3, 2, 1},
		KeywordMinRunes: 3,
		MaxKeywords:     5,
		PositionalLimit: 15,
		StopWords:       append([]string(nil), DefaultStopWords...),
	}
}

// Matcher locates citation regions. It holds no per-call state and is safe for
// concurrent use.
type Matcher struct {
	opts Options
	stop map[string]struct{}
}

var defaultMatcher = New(DefaultOptions())

// New returns a Matcher using opts, with zero fields defaulted.
func New(opts Options) *Matcher {
	def := DefaultOptions()
	if opts.MinTokens <= 0 {
		opts.MinTokens = def.MinTokens
	}
	if opts.AnchorTokens <= 0 {
		opts.AnchorTokens = def.AnchorTokens
	}
	if len(opts.ShrinkSizes) == 0 {
		opts.ShrinkSizes = def.ShrinkSizes
	}
	if opts.KeywordMinRunes <= 0 {
		opts.KeywordMinRunes = def.KeywordMinRunes
	}
	if opts.MaxKeywords <= 0 {
		opts.MaxKeywords = def.MaxKeywords
	}
	if opts.PositionalLimit <= 0 {
		opts.PositionalLimit = def.PositionalLimit
	}
	if opts.StopWords == nil {
		opts.StopWords = def.StopWords
	}
	stop := make(map[string]struct{}, len(opts.StopWords))
	for _, word := range opts.StopWords {
		stop[strings.ToLower(strings.TrimSpace(word))] = struct{}{}
	}
	return &Matcher{opts: opts, stop: stop}
}

// Options returns the effective tuning.
func (m *Matcher) Options() Options {
	return m.opts
}

// Locate runs the default matcher.
func Locate(fragments []Fragment, citationText string) Region {
	return defaultMatcher.Locate(fragments, citationText)
}

// Locate returns the fragments of a page that best correspond to citationText.
// Tiers are tried in order: boundary anchors, shrunk anchors, keywords,
// position. An empty Region means the citation is too short to anchor or the
// page has no text.
func (m *Matcher) Locate(fragments []Fragment, citationText string) Region {
	tokens := strings.Fields(strings.ToLower(citationText))
	if len(tokens) < m.opts.MinTokens || len(fragments) == 0 {
		return Region{}
	}
	layer := buildLayer(fragments)

	if start, end, shrunk, ok := m.boundary(layer.text, tokens); ok {
		tier := TierBoundary
		if shrunk {
			tier = TierShrunk
		}
		if indices := layer.overlapping(start, end); len(indices) > 0 {
			return Region{Tier: tier, Indices: indices, Start: start, End: end}
		}
	}

	if keywords := m.keywords(tokens); len(keywords) > 0 {
		var indices []int
		for i := range fragments {
			text := layer.fragmentText(i)
			for _, keyword := range keywords {
				if strings.Contains(text, keyword) {
					indices = append(indices, i)
					break
				}
			}
		}
		if len(indices) > 0 {
			return layer.region(TierKeyword, indices)
		}
	}

	var indices []int
	for i, fragment := range fragments {
		if len(indices) == m.opts.PositionalLimit {
			break
		}
		if strings.TrimSpace(fragment.Text) == "" {
			continue
		}
		indices = append(indices, i)
	}
	if len(indices) == 0 {
		return Region{}
	}
	return layer.region(TierPositional, indices)
}

// boundary finds [start, end) between the first head anchor and the end of the
// last tail anchor that begins at or after it.
func (m *Matcher) boundary(text string, tokens []string) (int, int, bool, bool) {
	n := len(tokens)
	size := m.opts.AnchorTokens
	if size > n {
		size = n
	}
	head := strings.Join(tokens[:size], " ")
	tail := strings.Join(tokens[n-size:], " ")
	if start := strings.Index(text, head); start >= 0 {
		if idx := strings.LastIndex(text, tail); idx >= start {
			return start, idx + len(tail), false, true
		}
	}

	sizes := m.anchorSizes(size)
	start := -1
	for _, k := range sizes {
		if pos := strings.Index(text, strings.Join(tokens[:k], " ")); pos >= 0 {
			start = pos
			break
		}
	}
	if start < 0 {
		return 0, 0, false, false
	}
	for _, k := range sizes {
		anchor := strings.Join(tokens[n-k:], " ")
		if idx := strings.LastIndex(text, anchor); idx >= start {
			return start, idx + len(anchor), true, true
		}
	}
	return 0, 0, false, false
}

// anchorSizes lists the full anchor size followed by every smaller shrink size.
func (m *Matcher) anchorSizes(full int) []int {
	sizes := []int{full}
	for _, k := range m.opts.ShrinkSizes {
		if k > 0 && k < full {
			sizes = append(sizes, k)
		}
	}
	return sizes
}

func (m *Matcher) keywords(tokens []string) []string {
	seen := make(map[string]struct{}, m.opts.MaxKeywords)
	keywords := make([]string, 0, m.opts.MaxKeywords)
	for _, token := range tokens {
		word := strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if utf8.RuneCountInString(word) <= m.opts.KeywordMinRunes {
			continue
		}
		if _, ok := m.stop[word]; ok {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
		if len(keywords) == m.opts.MaxKeywords {
			break
		}
	}
	return keywords
}

type span struct {
	start int
	end   int
}

// layer is the lowercase page buffer with each fragment's contribution.
type layer struct {
	text  string
	spans []span
}

func buildLayer(fragments []Fragment) layer {
	var b strings.Builder
	spans := make([]span, len(fragments))
	for i, fragment := range fragments {
		if i > 0 {
			b.WriteByte(' ')
		}
		start := b.Len()
		b.WriteString(strings.ToLower(fragment.Text))
		spans[i] = span{start: start, end: b.Len()}
	}
	return layer{text: b.String(), spans: spans}
}

func (l layer) fragmentText(i int) string {
	return l.text[l.spans[i].start:l.spans[i].end]
}

func (l layer) overlapping(start, end int) []int {
	var indices []int
	for i, s := range l.spans {
		if s.end > s.start && s.start < end && s.end > start {
			indices = append(indices, i)
		}
	}
	return indices
}

func (l layer) region(tier Tier, indices []int) Region {
	return Region{
		Tier:    tier,
		Indices: indices,
		Start:   l.spans[indices[0]].start,
		End:     l.spans[indices[len(indices)-1]].end,
	}
}
