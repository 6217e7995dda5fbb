package summarizer

import (
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// Chunk size limits, in tokens.
const (
	MinChunkTokens   = 100
	MaxChunkTokens   = 4000
	MinOverlapTokens = 20
	MaxOverlapTokens = 500

	DefaultChunkTokens   = 500
	DefaultOverlapTokens = 50
	DefaultTargetChunks  = 8
)

// Counter returns the token length of a text.
type Counter func(text string) int

// TokenCounter counts cl100k tokens. If the codec cannot be loaded it falls
// back to an estimate of four tokens per three words.
func TokenCounter() Counter {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return WordCounter
	}
	return func(text string) int {
		ids, _, err := codec.Encode(text)
		if err != nil {
			return WordCounter(text)
		}
		return len(ids)
	}
}

// WordCounter estimates tokens from whitespace separated words.
func WordCounter(text string) int {
	return (len(strings.Fields(text))*4 + 2) / 3
}

// Sizer picks chunk and overlap sizes from the document length, so that short
// documents are not over-split and long ones keep the map fan-out bounded.
type Sizer struct {
	Count        Counter
	TargetChunks int
}

// NewSizer creates a Sizer that counts cl100k tokens.
func NewSizer() *Sizer {
	return &Sizer{Count: TokenCounter(), TargetChunks: DefaultTargetChunks}
}

// Plan returns the chunk size and overlap, in tokens, for text.
func (s *Sizer) Plan(text string) (size, overlap int) {
	target := s.TargetChunks
	if target <= 0 {
		target = DefaultTargetChunks
	}
	total := s.Count(text)
	if total <= 0 {
		return DefaultChunkTokens, DefaultOverlapTokens
	}
	size = clamp((total+target-1)/target, MinChunkTokens, MaxChunkTokens)
	overlap = clamp(size/10, MinOverlapTokens, MaxOverlapTokens)
	return size, overlap
}

// OverlapFor derives the overlap for an explicit chunk size.
func OverlapFor(size int) int {
	return clamp(size/10, MinOverlapTokens, MaxOverlapTokens)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
