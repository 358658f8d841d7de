// Package document reads PDFs for the viewer: page count, per-page text
// fragments in reading order, and a text raster of each page.
package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ledongthuc/pdf"

	"github.com/csheth/citejump/internal/logger"
	"github.com/csheth/citejump/internal/match"
)

// ErrPageOutOfRange is returned for page numbers outside 1..PageCount.
var ErrPageOutOfRange = errors.New("document: page out of range")

const (
	defaultPageCache = 32
	defaultFontSize  = 10.0
	// glyphWidth approximates an average glyph advance as a fraction of the
	// font size when the extractor reports no width.
	glyphWidth = 0.5
	// columnWidth is the number of points one raster column stands for at
	// zoom 1.
	columnWidth = 6.0
	maxIndent   = 40
)

// Document is an open PDF. Access to the underlying reader is serialized.
type Document struct {
	path string
	log  logger.Logger

	mu     sync.Mutex
	file   *os.File
	reader *pdf.Reader
	pages  int
	cache  *lru.Cache[int, []match.Fragment]
}

// Open opens the PDF at path.
func Open(path string, log logger.Logger) (*Document, error) {
	cache, err := lru.New[int, []match.Fragment](defaultPageCache)
	if err != nil {
		return nil, err
	}
	d := &Document{
		path:  path,
		log:   logger.Component(log, "document"),
		cache: cache,
	}
	if err := d.open(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Document) open() error {
	file, reader, err := pdf.Open(d.path)
	if err != nil {
		return fmt.Errorf("open pdf %s: %w", d.path, err)
	}
	d.file = file
	d.reader = reader
	d.pages = reader.NumPage()
	d.log.Debug("opened", "path", d.path, "pages", d.pages)
	return nil
}

// Path returns the file the document was opened from.
func (d *Document) Path() string {
	return d.path
}

// Name returns the file name shown in the viewer header.
func (d *Document) Name() string {
	return filepath.Base(d.path)
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pages
}

// Reload reopens the file after it changed on disk and drops cached pages.
func (d *Document) Reload() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file != nil {
		d.file.Close()
	}
	d.cache.Purge()
	return d.open()
}

// Close releases the file.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	d.reader = nil
	return err
}

// PageFragments returns one fragment per text row of page n, top to bottom.
// Pieces inside a row are joined left to right. Offsets index the page text
// joined with single spaces.
func (d *Document) PageFragments(ctx context.Context, n int) ([]match.Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reader == nil {
		return nil, fmt.Errorf("document %s is closed", d.Name())
	}
	if n < 1 || n > d.pages {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, n, d.pages)
	}
	if frags, ok := d.cache.Get(n); ok {
		return frags, nil
	}

	page := d.reader.Page(n)
	if page.V.IsNull() {
		return nil, fmt.Errorf("page %d has no content", n)
	}
	rows, err := page.GetTextByRow()
	if err != nil {
		return nil, fmt.Errorf("extract page %d: %w", n, err)
	}
	frags := rowsToFragments(rows)
	d.cache.Add(n, frags)
	d.log.Debug("extracted page", "page", n, "fragments", len(frags))
	return frags, nil
}

func rowsToFragments(rows pdf.Rows) []match.Fragment {
	ordered := make([]*pdf.Row, 0, len(rows))
	for _, row := range rows {
		if row != nil && len(row.Content) > 0 {
			ordered = append(ordered, row)
		}
	}
	// PDF user space grows upwards, so the top row has the largest position.
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position > ordered[j].Position
	})

	frags := make([]match.Fragment, 0, len(ordered))
	offset := 0
	for _, row := range ordered {
		pieces := append([]pdf.Text(nil), row.Content...)
		sort.SliceStable(pieces, func(i, j int) bool { return pieces[i].X < pieces[j].X })

		text, left, right, size := joinPieces(pieces)
		if text == "" {
			continue
		}
		if len(frags) > 0 {
			offset++
		}
		frags = append(frags, match.Fragment{
			Text:   text,
			Start:  offset,
			End:    offset + len(text),
			X:      left,
			Y:      float64(row.Position),
			Width:  right - left,
			Height: size,
		})
		offset += len(text)
	}
	return frags
}

// joinPieces concatenates the text runs of one row, inserting a space where
// a horizontal gap separates two runs that carry no whitespace themselves.
func joinPieces(pieces []pdf.Text) (string, float64, float64, float64) {
	var b strings.Builder
	left, right, size := 0.0, 0.0, 0.0
	for i, piece := range pieces {
		if piece.S == "" {
			continue
		}
		fontSize := piece.FontSize
		if fontSize <= 0 {
			fontSize = defaultFontSize
		}
		width := piece.W
		if width <= 0 {
			width = float64(utf8.RuneCountInString(piece.S)) * fontSize * glyphWidth
		}
		if b.Len() == 0 {
			left = piece.X
		} else if i > 0 && piece.X > right+fontSize*0.1 && !endsWithSpace(b.String()) && !startsWithSpace(piece.S) {
			b.WriteByte(' ')
		}
		b.WriteString(piece.S)
		if end := piece.X + width; end > right {
			right = end
		}
		if fontSize > size {
			size = fontSize
		}
	}
	return strings.Join(strings.Fields(b.String()), " "), left, right, size
}

func endsWithSpace(s string) bool {
	return strings.HasSuffix(s, " ") || strings.HasSuffix(s, "\t")
}

func startsWithSpace(s string) bool {
	return strings.HasPrefix(s, " ") || strings.HasPrefix(s, "\t")
}

// Line is one row of a rendered page.
type Line struct {
	Fragment int
	Indent   int
	Text     string
}

// Raster is the text rendering of one page.
type Raster struct {
	Page  int
	Zoom  float64
	Lines []Line
}

// RenderPage lays out page n as indented text lines, one per fragment. zoom
// scales the indentation derived from each row's horizontal position.
func (d *Document) RenderPage(ctx context.Context, n int, zoom float64) (Raster, error) {
	frags, err := d.PageFragments(ctx, n)
	if err != nil {
		return Raster{}, err
	}
	return Layout(n, frags, zoom), nil
}

// Layout builds a raster from already extracted fragments.
func Layout(page int, frags []match.Fragment, zoom float64) Raster {
	if zoom <= 0 {
		zoom = 1
	}
	raster := Raster{Page: page, Zoom: zoom, Lines: make([]Line, 0, len(frags))}
	margin := 0.0
	for i, f := range frags {
		if i == 0 || f.X < margin {
			margin = f.X
		}
	}
	for i, f := range frags {
		indent := int((f.X - margin) / columnWidth * zoom)
		if indent > maxIndent {
			indent = maxIndent
		}
		if indent < 0 {
			indent = 0
		}
		raster.Lines = append(raster.Lines, Line{Fragment: i, Indent: indent, Text: f.Text})
	}
	return raster
}
