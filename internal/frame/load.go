package frame

import "github.com/tiktoken-go/tokenizer"

// CostEstimator maps item content to a cognitive-load cost in (0,1].
type CostEstimator interface {
	Cost(content string) float64
}

// tokensPerLoadUnit calibrates the load scale: an item of this many tokens
// costs a full load unit, i.e. the entire default ceiling.
const tokensPerLoadUnit = 512

// fallbackCharsPerToken approximates token counts when the tokenizer is
// unavailable.
const fallbackCharsPerToken = 4.0

// LoadEstimator computes load costs from token counts using the cl100k
// encoding, falling back to a characters-based estimate when the encoding
// cannot be loaded.
type LoadEstimator struct {
	codec tokenizer.Codec
}

var _ CostEstimator = (*LoadEstimator)(nil)

// NewLoadEstimator creates a load estimator. It never fails: a missing
// tokenizer downgrades to the character estimate.
func NewLoadEstimator() *LoadEstimator {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return &LoadEstimator{}
	}
	return &LoadEstimator{codec: codec}
}

// Cost returns the load cost for one item's content, clamped to (0,1].
func (e *LoadEstimator) Cost(content string) float64 {
	tokens := e.countTokens(content)
	cost := float64(tokens) / tokensPerLoadUnit
	if cost < 0.01 {
		cost = 0.01
	}
	if cost > 1 {
		cost = 1
	}
	return cost
}

func (e *LoadEstimator) countTokens(content string) int {
	if e.codec != nil {
		if ids, _, err := e.codec.Encode(content); err == nil {
			return len(ids)
		}
	}
	return int(float64(len(content)) / fallbackCharsPerToken)
}
