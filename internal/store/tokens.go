package store

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens with the cl100k_base encoding, falling back
// to a chars/4 estimate when the encoding cannot be loaded (tiktoken may
// fetch its data on first use).
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter creates a TokenCounter. The encoding is initialized
// lazily on first count.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

// CountTokens implements core.TokenCounter.
func (c *TokenCounter) CountTokens(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			c.enc = enc
		}
	})
	if c.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}
