package match

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fragments(texts ...string) []Fragment {
	out := make([]Fragment, len(texts))
	offset := 0
	for i, text := range texts {
		out[i] = Fragment{Text: text, Start: offset, End: offset + len(text), Y: float64(i * 12)}
		offset += len(text) + 1
	}
	return out
}

func TestLocateCoversSplitSentence(t *testing.T) {
	t.Parallel()

	frags := fragments("Machine learning is", "a branch of AI", "used for pattern", "recognition tasks")
	region := Locate(frags, "Machine learning is a branch of AI used for pattern recognition")

	require.Equal(t, TierBoundary, region.Tier)
	assert.Equal(t, []int{0, 1, 2, 3}, region.Indices)
	assert.True(t, region.Confident())
	first, ok := region.First()
	assert.True(t, ok)
	assert.Equal(t, 0, first)
}

func TestLocateIgnoresCase(t *testing.T) {
	t.Parallel()

	frags := fragments("Intro", "THE QUICK BROWN", "fox jumps over", "the lazy dog", "Outro")
	region := Locate(frags, "the quick brown Fox Jumps Over the lazy dog")

	require.Equal(t, TierBoundary, region.Tier)
	assert.Equal(t, []int{1, 2, 3}, region.Indices)
}

func TestLocateShortCitationIsEmpty(t *testing.T) {
	t.Parallel()

	frags := fragments("Machine learning is", "a branch of AI")
	for _, text := range []string{"", "   ", "Machine", "Machine learning"} {
		region := Locate(frags, text)
		assert.True(t, region.Empty(), "citation %q", text)
		assert.Equal(t, TierNone, region.Tier)
	}
}

func TestLocateNoFragments(t *testing.T) {
	t.Parallel()

	region := Locate(nil, "some citation with enough tokens")
	assert.True(t, region.Empty())
	assert.Equal(t, TierNone, region.Tier)
}

func TestLocateFallsBackToPositional(t *testing.T) {
	t.Parallel()

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = fmt.Sprintf("line %d of body", i)
	}
	texts[3] = "   "
	region := Locate(fragments(texts...), "xyz nonexistent phrase never appears anywhere")

	require.Equal(t, TierPositional, region.Tier)
	require.Len(t, region.Indices, 15)
	assert.NotContains(t, region.Indices, 3)
	assert.Equal(t, 0, region.Indices[0])
	assert.Equal(t, 15, region.Indices[14])
	assert.False(t, region.Confident())
}

func TestLocateScenarioBWithoutOverlap(t *testing.T) {
	t.Parallel()

	frags := fragments("Machine learning is", "a branch of AI", "used for pattern", "recognition tasks")
	region := Locate(frags, "xyz nonexistent phrase never appears anywhere")

	require.Equal(t, TierPositional, region.Tier)
	assert.Equal(t, []int{0, 1, 2, 3}, region.Indices)
}

func TestLocateKeywordTier(t *testing.T) {
	t.Parallel()

	frags := fragments(
		"Results section",
		"gradient descent converges slowly",
		"when the learning rate",
		"is poorly chosen",
		"Table 4 summarises",
	)
	// Neither the head nor any tail anchor appears, but "gradient" and
	// "poorly" do.
	region := Locate(frags, "Stochastic gradient methods behave poorly without tuning")

	require.Equal(t, TierKeyword, region.Tier)
	assert.Equal(t, []int{1, 3}, region.Indices)
	assert.False(t, region.Confident())
	assert.True(t, region.Contains(3))
	assert.False(t, region.Contains(2))
}

func TestLocateKeywordsSkipStopWordsAndShortWords(t *testing.T) {
	t.Parallel()

	m := New(DefaultOptions())
	keywords := m.keywords(strings.Fields("the (cat) would have been \"modelling\" modelling, graphs; a b"))
	assert.Equal(t, []string{"modelling", "graphs"}, keywords)

	keywords = m.keywords(strings.Fields("alpha bravo charlie delta echoes foxtrot golfing"))
	assert.Equal(t, []string{"alpha", "bravo", "charlie", "delta", "echoes"}, keywords)
}

func TestLocateShrinksAnchors(t *testing.T) {
	t.Parallel()

	// The quote paraphrases a word inside each five-token anchor, so only the
	// three-token anchors survive.
	frags := fragments(
		"Abstract",
		"We propose a new",
		"architecture for sequence",
		"transduction based solely on",
		"attention mechanisms.",
		"Acknowledgements",
	)
	citation := "We propose a novel architecture for sequence transduction based entirely on attention mechanisms."
	region := Locate(frags, citation)

	require.Equal(t, TierShrunk, region.Tier)
	assert.True(t, region.Confident())
	assert.Equal(t, []int{1, 2, 3, 4}, region.Indices)
}

func TestLocateTailMustFollowHead(t *testing.T) {
	t.Parallel()

	// The full tail only occurs before the head; a shorter tail occurs after.
	frags := fragments(
		"effects were clearly significant overall",
		"In our study the",
		"effects were quite significant overall",
	)
	region := Locate(frags, "in our study the effects were clearly significant overall")

	require.Equal(t, TierShrunk, region.Tier)
	assert.Equal(t, []int{1, 2}, region.Indices)
	assert.Greater(t, region.End, region.Start)
}

func TestLocateRespectsOptions(t *testing.T) {
	t.Parallel()

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("row %d", i)
	}
	m := New(Options{PositionalLimit: 4})
	region := m.Locate(fragments(texts...), "nothing here will ever match")
	require.Equal(t, TierPositional, region.Tier)
	assert.Equal(t, []int{0, 1, 2, 3}, region.Indices)

	m = New(Options{MinTokens: 1})
	region = m.Locate(fragments("alpha beta"), "beta")
	assert.Equal(t, TierBoundary, region.Tier)
	assert.Equal(t, 5, m.Options().AnchorTokens)
}

var corpus = strings.Fields(`attention is all you need because recurrent models
factor computation along the symbol positions of the input and output sequences
aligning the positions to steps in computation time they generate a sequence of
hidden states as a function of the previous hidden state and the input for that
position this inherently sequential nature precludes parallelization within
training examples which becomes critical at longer sequence lengths`)

// Any exact substring of the page text with at least three tokens must be
// covered by a boundary region.
func TestLocateExactSubstringIsAlwaysCovered(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		var texts []string
		for i := 0; i < len(corpus); {
			n := 1 + rng.Intn(4)
			if i+n > len(corpus) {
				n = len(corpus) - i
			}
			texts = append(texts, strings.Join(corpus[i:i+n], " "))
			i += n
		}
		frags := fragments(texts...)
		page := strings.Join(texts, " ")

		from := rng.Intn(len(corpus) - 3)
		to := from + 3 + rng.Intn(len(corpus)-from-3+1)
		if to > len(corpus) {
			to = len(corpus)
		}
		quote := strings.Join(corpus[from:to], " ")
		if round%2 == 1 {
			quote = strings.ToUpper(quote)
		}

		region := Locate(frags, quote)
		require.True(t, region.Confident(), "round %d quote %q", round, quote)

		at := strings.Index(page, strings.ToLower(quote))
		require.GreaterOrEqual(t, at, 0)
		end := at + len(quote)
		for i := range frags {
			s := spanOf(texts, i)
			if s.start < end && s.end > at {
				assert.True(t, region.Contains(i), "round %d fragment %d not covered for %q", round, i, quote)
			}
		}
		for k := 1; k < len(region.Indices); k++ {
			assert.Equal(t, region.Indices[k-1]+1, region.Indices[k], "region must be contiguous")
		}
	}
}

func spanOf(texts []string, i int) span {
	start := 0
	for k := 0; k < i; k++ {
		start += len(texts[k]) + 1
	}
	return span{start: start, end: start + len(texts[i])}
}

func TestLocateIsDeterministic(t *testing.T) {
	t.Parallel()

	frags := fragments("one two three", "four five six", "seven eight nine", "one two three")
	first := Locate(frags, "one two three four five")
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Locate(frags, "one two three four five"))
	}
}

func TestTierString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "boundary", TierBoundary.String())
	assert.Equal(t, "shrunk-boundary", TierShrunk.String())
	assert.Equal(t, "keyword", TierKeyword.String())
	assert.Equal(t, "positional", TierPositional.String())
	assert.Equal(t, "none", TierNone.String())
}
