package citation

import (
	"html"
	"io"
	"math"
	"path"
	"regexp"
	"strings"

	xhtml "golang.org/x/net/html"

	"github.com/csheth/citejump/internal/address"
)

// UnknownDocument is the document id given to hits whose source id has no
// file component.
const UnknownDocument = "Unknown Document"

// FromSource converts a raw retrieval hit into a Citation. sourceID has the
// form "path/file.pdf:page[:paragraph[:chunk]]". A nil score leaves Relevance
// unset; otherwise relevance is 1-score rounded to three places, matching the
// distance scores the retrieval side reports.
func FromSource(origin int, sourceID, content string, score *float64) Citation {
	documentID, pageAddress := splitSourceID(sourceID)
	c := Citation{
		OriginIndex: origin,
		DocumentID:  documentID,
		PageAddress: pageAddress,
		SourceID:    sourceID,
		Text:        removeFilenameReferences(StripHTML(content), documentID),
	}
	if score != nil {
		relevance := math.Round((1-*score)*1000) / 1000
		c.Relevance = &relevance
	}
	return c
}

func splitSourceID(sourceID string) (string, string) {
	parts := strings.Split(sourceID, ":")
	if len(parts) < 2 {
		return UnknownDocument, "N/A"
	}
	filename := path.Base(strings.ReplaceAll(parts[0], `\`, "/"))
	switch {
	case len(parts) >= 4:
		return filename, address.Format(parts[1], parts[2], parts[3])
	case len(parts) == 3:
		return filename, address.Format(parts[1], parts[2], "")
	default:
		return filename, address.Format(parts[1], "", "")
	}
}

var whitespaceRegexp = regexp.MustCompile(`\s+`)

// StripHTML drops markup from retrieved content, decodes entities and
// collapses whitespace.
func StripHTML(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	z := xhtml.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			if z.Err() != io.EOF {
				// Malformed input: fall back to the raw text.
				return collapse(html.UnescapeString(s))
			}
			return collapse(b.String())
		case xhtml.TextToken:
			b.Write(z.Text())
		}
	}
}

func collapse(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(whitespaceRegexp.ReplaceAllString(s, " "))
}

var footerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\s*\d{3,4}\s*$`),
	regexp.MustCompile(`(?i)\s*Page \d+.*$`),
	regexp.MustCompile(`(?i)\s*p\.\s*\d+.*$`),
	regexp.MustCompile(`\s*\d+/\d+\s*$`),
}

// removeFilenameReferences trims the file name and page footers that PDF
// extraction tends to leave at the end of a chunk.
func removeFilenameReferences(content, filename string) string {
	var patterns []*regexp.Regexp
	if filename != "" && filename != UnknownDocument {
		base := filename
		for _, ext := range []string{".pdf", ".txt", ".docx"} {
			base = strings.ReplaceAll(base, ext, "")
		}
		patterns = append(patterns,
			regexp.MustCompile(`(?i)\s*`+regexp.QuoteMeta(filename)+`\s*$`),
		)
		if base != "" {
			patterns = append(patterns,
				regexp.MustCompile(`(?i)\s*`+regexp.QuoteMeta(base)+`\s*$`),
				regexp.MustCompile(`(?i)\s*`+regexp.QuoteMeta(base)+`\s*\d+\s*$`),
			)
		}
	}
	patterns = append(patterns, footerPatterns...)
	for _, re := range patterns {
		content = re.ReplaceAllString(content, "")
	}
	return strings.TrimSpace(content)
}
