package fingerprint

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// syntheticDocument builds a text of distinct tokens, each repeated weight times.
func syntheticDocument(prefix string, distinct, weight int) string {
	var sb strings.Builder
	for rep := 0; rep < weight; rep++ {
		for i := 0; i < distinct; i++ {
			fmt.Fprintf(&sb, "%s%d ", prefix, i)
		}
	}
	return sb.String()
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"Simple", "Hello World", []string{"hello", "world"}},
		{"Punctuation", "crawl, page; link.", []string{"crawl", "page", "link"}},
		{"Underscore", "snake_case and 42", []string{"snake_case", "and", "42"}},
		{"Apostrophe", "don't", []string{"don", "t"}},
		{"Unicode", "Café ÜBER", []string{"café", "über"}},
		{"Empty", "  \n\t ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Tokenize(tt.input)
			if len(tt.expected) == 0 {
				assert.Empty(t, result)
				return
			}
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestCompute_EmptyText(t *testing.T) {
	assert.Equal(t, Fingerprint(0), Compute(""))
	assert.Equal(t, Fingerprint(0), Compute(" ... !!! "))
}

func TestCompute_Deterministic(t *testing.T) {
	text := "Information and Computer Sciences at the University of California, Irvine"
	assert.Equal(t, Compute(text), Compute(text))
	assert.NotEqual(t, Fingerprint(0), Compute(text))
}

func TestCompute_OrderIndependent(t *testing.T) {
	a := "alpha beta gamma delta alpha"
	b := "delta alpha gamma alpha beta"
	assert.Equal(t, Compute(a), Compute(b))
}

func TestCompute_CaseInsensitive(t *testing.T) {
	assert.Equal(t, Compute("Graduate Admissions"), Compute("graduate ADMISSIONS"))
}

func TestCompute_NearDuplicateWithinThreshold(t *testing.T) {
	base := syntheticDocument("term", 301, 20)
	inserted := base + " The quick brown fox jumps over the lazy dog near campus. "

	d := Distance(Compute(base), Compute(inserted))
	assert.LessOrEqual(t, d, 5, "one inserted sentence moved the fingerprint %d bits", d)
	assert.True(t, Near(Compute(base), Compute(inserted), 5))
}

func TestCompute_UnrelatedTextsNearHalfTheBits(t *testing.T) {
	const pairs = 50
	rng := rand.New(rand.NewSource(42))
	total := 0
	for i := 0; i < pairs; i++ {
		a := syntheticDocument(fmt.Sprintf("a%dx", rng.Int()), 40, 1)
		b := syntheticDocument(fmt.Sprintf("b%dy", rng.Int()), 40, 1)
		total += Distance(Compute(a), Compute(b))
	}
	mean := float64(total) / pairs
	assert.InDelta(t, 32, mean, 4, "mean distance of unrelated texts was %.2f", mean)
}

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b     Fingerprint
		expected int
	}{
		{0, 0, 0},
		{0, 1, 1},
		{0xFF, 0x0F, 4},
		{0, ^Fingerprint(0), 64},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, Distance(tt.a, tt.b))
		assert.Equal(t, tt.expected, Distance(tt.b, tt.a))
	}
}
