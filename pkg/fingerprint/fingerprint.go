// Package fingerprint computes 64-bit SimHash fingerprints of page text. Texts that share
// most of their weighted tokens produce fingerprints a few bits apart; unrelated texts
// differ in about half of the bits.
package fingerprint

import (
	"math/bits"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint is a 64-bit SimHash value.
type Fingerprint uint64

// Tokenize lowercases text and splits it into runs of letters, digits and underscores.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// Compute returns the SimHash of text. Each distinct token votes on every bit of its hash,
// weighted by its term frequency; a bit is set when the sum of votes is positive.
// Text with no tokens yields 0.
func Compute(text string) Fingerprint {
	tf := make(map[string]int)
	for _, tok := range Tokenize(text) {
		tf[tok]++
	}
	if len(tf) == 0 {
		return 0
	}

	var votes [64]int
	for tok, weight := range tf {
		h := xxhash.Sum64String(tok)
		for i := 0; i < 64; i++ {
			if h&(1<<uint(i)) != 0 {
				votes[i] += weight
			} else {
				votes[i] -= weight
			}
		}
	}

	var fp Fingerprint
	for i, v := range votes {
		if v > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b Fingerprint) int {
	return bits.OnesCount64(uint64(a ^ b))
}

// Near reports whether a and b are within threshold bits of each other.
func Near(a, b Fingerprint, threshold int) bool {
	return Distance(a, b) <= threshold
}
