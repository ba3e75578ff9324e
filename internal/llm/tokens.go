package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/MikeSquared-Agency/vellum/internal/chat"
)

// perMessageOverhead approximates the role and separator tokens each turn
// costs on chat endpoints.
const perMessageOverhead = 4

var (
	encMu     sync.Mutex
	encodings = map[string]*tiktoken.Tiktoken{}
)

func encodingFor(model string) *tiktoken.Tiktoken {
	encMu.Lock()
	defer encMu.Unlock()
	if enc, ok := encodings[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Non-OpenAI model names are common here.
		enc, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	}
	if err != nil {
		enc = nil
	}
	encodings[model] = enc
	return enc
}

// EstimateTokens sizes a history for logging and metrics. It falls back to a
// character heuristic when no encoding is available.
func EstimateTokens(model string, messages []chat.Message) int {
	enc := encodingFor(model)
	total := 0
	for _, m := range messages {
		total += perMessageOverhead
		if enc != nil {
			total += len(enc.Encode(m.Content, nil, nil))
		} else {
			total += approxTokens(m.Content)
		}
	}
	return total
}

func approxTokens(s string) int {
	n := len(s) / 4
	if n == 0 && s != "" {
		n = 1
	}
	return n
}
