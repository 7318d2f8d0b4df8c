// Package tokenutil estimates token counts for task results. The default
// estimator is the rune-length heuristic used for cost reporting; the tiktoken
// estimator lazily loads the cl100k_base encoding and falls back to the
// heuristic if the encoding cannot be loaded.
package tokenutil

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	jsonx "taskguard/internal/shared/json"
)

// CharsPerToken is the divisor of the length heuristic.
const CharsPerToken = 4

// Estimator converts a task result into a token-count proxy.
type Estimator interface {
	Estimate(result any) int
}

// EstimatorFunc adapts a plain function to Estimator.
type EstimatorFunc func(result any) int

func (f EstimatorFunc) Estimate(result any) int { return f(result) }

// CharEstimator estimates tokens as length(stringify(result)) / 4.
type CharEstimator struct{}

func (CharEstimator) Estimate(result any) int {
	return EstimateChars(jsonx.Stringify(result))
}

// EstimateChars returns runes/4 for text.
func EstimateChars(text string) int {
	return utf8.RuneCountInString(text) / CharsPerToken
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken

	// loadEncoding is swapped in tests to avoid fetching BPE ranks.
	loadEncoding = func() (*tiktoken.Tiktoken, error) {
		return tiktoken.GetEncoding("cl100k_base")
	}
)

func cl100k() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := loadEncoding()
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// TiktokenEstimator counts cl100k_base tokens of the stringified result.
type TiktokenEstimator struct{}

func (TiktokenEstimator) Estimate(result any) int {
	return CountTokens(jsonx.Stringify(result))
}

// CountTokens returns an encoded token count, or the length heuristic when
// the encoding is unavailable.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if enc := cl100k(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return EstimateChars(text)
}

// NewEstimator resolves an estimator by name: "tiktoken" or anything else
// for the length heuristic.
func NewEstimator(name string) Estimator {
	if name == "tiktoken" {
		return TiktokenEstimator{}
	}
	return CharEstimator{}
}
