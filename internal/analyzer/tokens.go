package analyzer

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func loadCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err == nil {
			codec = c
		}
	})
	return codec
}

// CountTokens returns the cl100k token count of text. If the encoder is
// unavailable it falls back to the 4-characters-per-token estimate.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if c := loadCodec(); c != nil {
		if ids, _, err := c.Encode(text); err == nil {
			return len(ids)
		}
	}
	return estimateTokenCount(text)
}

// estimateTokenCount provides a rough token count estimate from text.
// Uses the ~4 characters per token heuristic for English.
func estimateTokenCount(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		return 1
	}
	return n
}
