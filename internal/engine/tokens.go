package engine

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenizerModel selects the BPE used for estimates.
const tokenizerModel = "gpt-4o"

// Per-message overhead of the chat format.
const (
	TokensPerMessage = 4
	TokensPerName    = 1
)

var (
	tkmOnce sync.Once
	tkm     *tiktoken.Tiktoken
)

func encoder() *tiktoken.Tiktoken {
	tkmOnce.Do(func() {
		// The encoding may need a download; without it we fall back to a
		// character estimate.
		if enc, err := tiktoken.EncodingForModel(tokenizerModel); err == nil {
			tkm = enc
		}
	})
	return tkm
}

// NumTokensEstimate estimates the token count of text.
func NumTokensEstimate(text string) int {
	if enc := encoder(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// MessagesTokenEstimate estimates the token count of a chat request.
func MessagesTokenEstimate(messages []Message) int {
	tokens := 0
	for _, msg := range messages {
		tokens += TokensPerMessage + TokensPerName
		tokens += NumTokensEstimate(msg.Content)
	}
	return tokens
}

// truncateToTokens keeps whole leading lines of content until the budget
// is spent.
func truncateToTokens(content string, budget int) (string, bool) {
	if NumTokensEstimate(content) <= budget {
		return content, false
	}
	lines := strings.Split(content, "\n")
	used := 0
	var kept []string
	for _, line := range lines {
		n := NumTokensEstimate(line) + 1
		if used+n > budget {
			break
		}
		used += n
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n"), true
}
