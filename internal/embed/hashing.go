package embed

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/ppiankov/tactimerge/internal/vecmath"
)

// Hashing is a deterministic, offline embedder based on signed feature hashing
// of unigrams and bigrams. Texts sharing vocabulary land close together.
type Hashing struct {
	dims int
}

// NewHashing creates a hashing embedder; dims defaults to 512.
func NewHashing(dims int) *Hashing {
	if dims <= 0 {
		dims = 512
	}
	return &Hashing{dims: dims}
}

// Dimensions implements Embedder.
func (h *Hashing) Dimensions() int { return h.dims }

// ID implements Embedder.
func (h *Hashing) ID() string { return fmt.Sprintf("hashing/%d", h.dims) }

// Embed implements Embedder. It never blocks, so ctx is only checked once.
func (h *Hashing) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := make([]float32, h.dims)
	tokens := Tokenize(text)
	for i, tok := range tokens {
		h.add(v, tok, 1)
		if i > 0 {
			h.add(v, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return vecmath.Normalize(v), nil
}

func (h *Hashing) add(v []float32, feature string, weight float32) {
	sum := xxhash.Sum64String(feature)
	idx := sum % uint64(h.dims)
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "in": true, "on": true,
	"to": true, "for": true, "with": true, "was": true, "were": true, "is": true, "are": true,
	"at": true, "by": true, "as": true, "it": true, "their": true, "his": true, "from": true,
}

// Tokenize lowercases text and splits it into words, dropping stopwords.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}
