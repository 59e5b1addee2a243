// Package tokens estimates prompt token counts for audit records. Known
// model families get accurate counts via tiktoken; anything else falls back
// to a character-based estimate.
package tokens

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/sugarsense/inference-proxy/internal/inference"
)

// Average characters per token for the fallback estimate.
const charsPerToken = 4

// Per-message formatting overhead (role tokens + separators).
const messageOverhead = 4

// Counter estimates how many prompt tokens a message sequence will cost.
type Counter struct {
	cacheMu    sync.RWMutex
	codecCache map[string]tokenizer.Codec
}

// NewCounter creates a Counter with an empty codec cache.
func NewCounter() *Counter {
	return &Counter{
		codecCache: make(map[string]tokenizer.Codec),
	}
}

// CountPrompt returns the estimated token count for the given messages.
// The second return value reports whether the count is a rough estimate
// (unknown model) rather than a tiktoken count.
func (c *Counter) CountPrompt(model string, messages []inference.Message) (int, bool) {
	codec := c.codecFor(model)
	if codec == nil {
		return estimate(messages), true
	}

	total := 0
	for _, m := range messages {
		ids, _, err := codec.Encode(m.Content)
		if err != nil {
			return estimate(messages), true
		}
		total += len(ids) + messageOverhead
	}
	return total, false
}

// codecFor resolves a tokenizer codec for the model, caching per model name.
// Returns nil for models tiktoken does not know.
func (c *Counter) codecFor(model string) tokenizer.Codec {
	c.cacheMu.RLock()
	codec, ok := c.codecCache[model]
	c.cacheMu.RUnlock()
	if ok {
		return codec
	}

	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		return nil
	}

	c.cacheMu.Lock()
	c.codecCache[model] = codec
	c.cacheMu.Unlock()
	return codec
}

func estimate(messages []inference.Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Role) + len(m.Content) + messageOverhead
	}
	return chars / charsPerToken
}
