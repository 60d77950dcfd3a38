// Package token provides pluggable token counting for the evidence budget.
// The budget is a hard cap on total evidence text handed to the generative
// model, so counting must use the same encoding the model bills by.
package token

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Counter measures the token length of a text under some encoding.
type Counter interface {
	Count(text string) int
	// Truncate returns the longest prefix of text that fits within max
	// tokens. max <= 0 returns the empty string.
	Truncate(text string, max int) string
}

// TiktokenCounter counts tokens with a tiktoken encoding. The zero value is
// not usable; construct with NewTiktokenCounter.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter returns a counter for the given encoding name, e.g.
// "cl100k_base" or "o200k_base".
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

func (c *TiktokenCounter) Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) <= max {
		return text
	}
	return c.enc.Decode(tokens[:max])
}

// WordCounter approximates tokens by whitespace-separated words. It backs
// tests and deployments without a tiktoken vocabulary on disk.
type WordCounter struct{}

func (WordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

func (WordCounter) Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	fields := strings.Fields(text)
	if len(fields) <= max {
		return text
	}
	return strings.Join(fields[:max], " ")
}
