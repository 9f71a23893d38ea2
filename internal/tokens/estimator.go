// Package tokens estimates prompt sizes with tiktoken so summarization
// providers can reject transcripts that would overflow a model's context.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	. "github.com/roelfdiedericks/voxnote/internal/logging"
)

// DefaultEncoding is cl100k_base, close enough for GPT, Claude and Gemini
// sizing decisions.
const DefaultEncoding = "cl100k_base"

// SafetyMargin accounts for tokenizer variance across model families.
const SafetyMargin = 1.2

// Estimator counts tokens, falling back to chars/4 when the encoding is
// unavailable (offline first run).
type Estimator struct {
	encoding *tiktoken.Tiktoken
	mu       sync.Mutex
}

var (
	globalEstimator     *Estimator
	globalEstimatorOnce sync.Once
)

// Get returns the global estimator.
func Get() *Estimator {
	globalEstimatorOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			L_warn("tokens: tiktoken unavailable, using chars/4", "error", err)
			globalEstimator = &Estimator{}
			return
		}
		globalEstimator = &Estimator{encoding: enc}
	})
	return globalEstimator
}

// Count returns the token count for text.
func (e *Estimator) Count(text string) int {
	if e == nil || e.encoding == nil {
		return (len(text) + 3) / 4
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.encoding.Encode(text, nil, nil))
}

// Estimate counts tokens with the global estimator.
func Estimate(text string) int {
	return Get().Count(text)
}

// Fits reports whether a prompt of estimated tokens plus the requested
// output fits in contextWindow after applying SafetyMargin. A zero window
// means unknown and always fits.
func Fits(estimatedInput, maxOutput, contextWindow int) bool {
	if contextWindow <= 0 {
		return true
	}
	return int(float64(estimatedInput)*SafetyMargin)+maxOutput <= contextWindow
}

// CapMaxTokens returns min(requestedMax, contextWindow - safeInput - buffer),
// never below 100.
func CapMaxTokens(requestedMax, contextWindow, estimatedInput, buffer int) int {
	if contextWindow <= 0 {
		return requestedMax
	}
	safeInput := int(float64(estimatedInput) * SafetyMargin)
	available := contextWindow - safeInput - buffer
	if available < 100 {
		available = 100
	}
	if requestedMax > 0 && requestedMax < available {
		return requestedMax
	}
	return available
}
