// Package address reads the page/paragraph strings attached to citations.
//
// Addresses come from the retrieval side as loosely structured text such as
// "6", "6 (¶1)" or "6 (¶1.1)". Only the leading page number is navigable; the
// paragraph locator is kept for display.
package address

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// DefaultPage is returned when an address carries no usable page number.
const DefaultPage = 1

// Address is the display decomposition of a page address.
type Address struct {
	Raw       string
	Page      int
	Paragraph string
	Chunk     string
	HasPage   bool
}

var locatorRegexp = regexp.MustCompile(`¶\s*([0-9A-Za-z]+)(?:\.([0-9A-Za-z]+))?`)

// ParsePage returns the leading integer of address, or DefaultPage when the
// address does not start with digits.
func ParsePage(address string) int {
	page, ok := leadingInt(address)
	if !ok {
		return DefaultPage
	}
	return page
}

// Parse splits an address into its page number and paragraph locator.
func Parse(raw string) Address {
	addr := Address{Raw: raw, Page: DefaultPage}
	if page, ok := leadingInt(raw); ok {
		addr.Page = page
		addr.HasPage = true
	}
	if m := locatorRegexp.FindStringSubmatch(raw); len(m) > 0 {
		addr.Paragraph = m[1]
		addr.Chunk = m[2]
	}
	return addr
}

// Label renders the address for a sidebar or status line.
func (a Address) Label() string {
	if !a.HasPage {
		if strings.TrimSpace(a.Raw) == "" {
			return "p. ?"
		}
		return strings.TrimSpace(a.Raw)
	}
	label := "p. " + strconv.Itoa(a.Page)
	if a.Paragraph != "" {
		label += " ¶" + a.Paragraph
		if a.Chunk != "" {
			label += "." + a.Chunk
		}
	}
	return label
}

// Format builds the address string the retrieval side attaches to citations.
// Empty paragraph or chunk parts are omitted.
func Format(page, paragraph, chunk string) string {
	page = strings.TrimSpace(page)
	paragraph = strings.TrimSpace(paragraph)
	chunk = strings.TrimSpace(chunk)
	switch {
	case paragraph == "":
		return page
	case chunk == "":
		return page + " (¶" + paragraph + ")"
	default:
		return page + " (¶" + paragraph + "." + chunk + ")"
	}
}

func leadingInt(s string) (int, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
