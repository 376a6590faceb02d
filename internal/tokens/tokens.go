// Package tokens counts model tokens for usage metering.
package tokens

import (
	"encoding/json"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// Encoding is the BPE vocabulary used for metering.
const Encoding = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

func encoder() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding(Encoding)
	})
	return enc, encErr
}

// Count returns the number of cl100k_base tokens in text. Blank text counts as zero.
// If the vocabulary cannot be loaded it falls back to one token per four runes.
func Count(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	e, err := encoder()
	if err != nil {
		return (utf8.RuneCountInString(text) + 3) / 4
	}
	return len(e.Encode(text, nil, nil))
}

// CountJSON counts the tokens of v's JSON encoding. Values that cannot be encoded count as zero.
func CountJSON(v any) int {
	if v == nil {
		return 0
	}
	if raw, ok := v.(json.RawMessage); ok {
		return Count(string(raw))
	}
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return Count(string(data))
}
