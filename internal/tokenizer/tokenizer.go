// Package tokenizer provides provider-appropriate token counting on top of
// tiktoken BPE encodings. Counts feed compression accounting and cost
// estimation; they are approximations for non-OpenAI providers, which do not
// publish their tokenizers.
package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const (
	encodingO200K  = "o200k_base"
	encodingCL100K = "cl100k_base"
)

// Tokenizer counts tokens in a string.
type Tokenizer interface {
	CountTokens(text string) int
}

type bpeTokenizer struct {
	enc *tiktoken.Tiktoken
}

func (t *bpeTokenizer) CountTokens(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

var (
	encMu    sync.Mutex
	encCache = map[string]*tiktoken.Tiktoken{}
)

// encoder returns a process-wide cached encoding. tiktoken fetches BPE
// ranks on first use, so construction is expensive.
func encoder(name string) (*tiktoken.Tiktoken, error) {
	encMu.Lock()
	defer encMu.Unlock()

	if enc, ok := encCache[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", name, err)
	}
	encCache[name] = enc
	return enc, nil
}

// ForProvider returns the tokenizer for a provider. OpenAI-family providers
// use o200k_base; everything else falls back to cl100k_base as the closest
// available proxy.
func ForProvider(provider string) (Tokenizer, error) {
	name := encodingCL100K
	switch provider {
	case "openai", "vllm", "ollama":
		name = encodingO200K
	}
	enc, err := encoder(name)
	if err != nil {
		return nil, err
	}
	return &bpeTokenizer{enc: enc}, nil
}
