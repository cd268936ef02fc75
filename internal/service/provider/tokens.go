package provider

import (
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TokenCounter estimates token counts when a vendor omits usage.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts with the cl100k_base encoding and falls back to a
// character heuristic when the encoding cannot be loaded.
type TiktokenCounter struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
	logger   *zap.Logger
}

// NewTiktokenCounter creates a counter. The encoding is loaded on first use.
func NewTiktokenCounter(logger *zap.Logger) *TiktokenCounter {
	return &TiktokenCounter{logger: logger}
}

// Count returns the token count of text.
func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}

	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			c.logger.Warn("tiktoken encoding unavailable, using estimate", zap.Error(err))
			return
		}
		c.encoding = enc
	})

	if c.encoding == nil {
		return EstimateTokens(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// EstimateTokens approximates tokens as one per CJK character plus one per
// four other characters.
func EstimateTokens(text string) int {
	var cjk, other int
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			cjk++
		} else {
			other++
		}
	}
	return cjk + (other+3)/4
}
