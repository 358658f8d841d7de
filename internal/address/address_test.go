package address

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want int
	}{
		{"bare page", "6", 6},
		{"paragraph annotation", "6 (¶1.1)", 6},
		{"paragraph only", "12 (¶3)", 12},
		{"leading whitespace", "  4 (¶2.1)", 4},
		{"unknown", "unknown", 1},
		{"empty", "", 1},
		{"trailing digits only", "page 7", 1},
		{"zero", "0", 0},
		{"overflow", "999999999999999999999999", 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParsePage(tt.in))
		})
	}
}

func TestParsePageReturnsLeadingInteger(t *testing.T) {
	t.Parallel()

	suffixes := []string{"", " ", " (¶1.1)", "(¶2)", " extra words", "-b"}
	for page := 1; page <= 300; page += 7 {
		for _, suffix := range suffixes {
			in := strconv.Itoa(page) + suffix
			assert.Equal(t, page, ParsePage(in), "address %q", in)
		}
	}
}

func TestParseKeepsLocatorForDisplay(t *testing.T) {
	t.Parallel()

	addr := Parse("6 (¶1.2)")
	assert.True(t, addr.HasPage)
	assert.Equal(t, 6, addr.Page)
	assert.Equal(t, "1", addr.Paragraph)
	assert.Equal(t, "2", addr.Chunk)
	assert.Equal(t, "p. 6 ¶1.2", addr.Label())

	addr = Parse("N/A")
	assert.False(t, addr.HasPage)
	assert.Equal(t, DefaultPage, addr.Page)
	assert.Equal(t, "N/A", addr.Label())
}

func TestFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "6", Format("6", "", ""))
	assert.Equal(t, "6 (¶1)", Format("6", "1", ""))
	assert.Equal(t, "6 (¶1.1)", Format("6", "1", "1"))
	assert.Equal(t, 6, ParsePage(Format("6", "1", "1")))
}
