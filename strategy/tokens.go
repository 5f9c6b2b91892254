package strategy

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/agentkit/agentrt/agent"
)

// cl100k_base approximates every provider's tokenizer reasonably well for
// budget decisions; it is exact for OpenAI's GPT-3.5/4 family and a
// best-effort stand-in otherwise, the same approximation kadirpekel-hector's
// token counter falls back to for non-OpenAI models.
const defaultEncodingName = "cl100k_base"

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func sharedEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(defaultEncodingName)
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// EstimateTokens returns a tiktoken-go-backed token count for messages,
// encoding each message's text with the shared cl100k_base encoder. If the
// encoder failed to load (e.g. no network access to fetch its vocabulary
// file on first use), it falls back to the four-characters-per-token
// heuristic rather than panicking, so compress_history still has a usable
// budget signal.
func EstimateTokens(messages []agent.Message) int {
	enc := sharedEncoding()
	if enc == nil {
		return estimateTokensHeuristic(messages)
	}
	var total int
	for _, m := range messages {
		total += len(enc.Encode(m.Text, nil, nil))
	}
	return total
}

// estimateTokensHeuristic is the fallback used when the tiktoken encoder is
// unavailable.
func estimateTokensHeuristic(messages []agent.Message) int {
	var chars int
	for _, m := range messages {
		chars += len(m.Text)
	}
	return chars / 4
}
