package summarize

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

type TokenCounter interface {
	Count(text string) (int, error)
}

// Tiktoken counts tokens with a BPE encoding such as cl100k_base.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

func NewTiktoken(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(text string) (int, error) {
	return len(t.enc.Encode(text, nil, nil)), nil
}
