package dedupe

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// minTokens keeps very short texts out of similarity matching; a handful of
// words says little about whether two pages are the same.
const minTokens = 5

type termVector struct {
	freq map[string]float64
	norm float64
	n    int
}

func vectorize(text string) termVector {
	text = strings.ToLower(norm.NFKC.String(text))
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	v := termVector{freq: make(map[string]float64, len(words)), n: len(words)}
	for _, w := range words {
		v.freq[w]++
	}
	for _, f := range v.freq {
		v.norm += f * f
	}
	v.norm = math.Sqrt(v.norm)
	return v
}

// Cosine returns the cosine similarity of the term-frequency vectors of a
// and b, in [0, 1].
func Cosine(a, b string) float64 {
	return cosine(vectorize(a), vectorize(b))
}

func cosine(a, b termVector) float64 {
	if a.norm == 0 || b.norm == 0 {
		return 0
	}
	small, large := a, b
	if len(small.freq) > len(large.freq) {
		small, large = large, small
	}
	dot := 0.0
	for w, f := range small.freq {
		dot += f * large.freq[w]
	}
	return dot / (a.norm * b.norm)
}
