package ctxengine

import (
	"encoding/json"
	"strings"

	"github.com/parleyhq/parley/internal/provider"
)

// Estimation overheads, calibrated against typical chat-format prompts.
const (
	// perTurnOverhead covers role markers and message framing.
	perTurnOverhead = 4

	// imageTokens is the allowance for one image part at auto detail.
	imageTokens = 765

	// defaultCharsPerToken approximates English text. Latin languages with
	// more diacritics run closer to 3.
	defaultCharsPerToken = 4.0
)

// TokenEstimator approximates the token cost of a piece of text.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharEstimator estimates tokens from a characters-per-token ratio. It
// overshoots on purpose: a budget decision taken on an underestimate would
// fail later at the provider.
type CharEstimator struct {
	CharsPerToken float64
}

// NewCharEstimator creates a CharEstimator. Ratios <= 0 fall back to the
// English default of 4 characters per token.
func NewCharEstimator(charsPerToken float64) *CharEstimator {
	if charsPerToken <= 0 {
		charsPerToken = defaultCharsPerToken
	}
	return &CharEstimator{CharsPerToken: charsPerToken}
}

// Estimate returns the estimated token count for text, rounded up.
func (e *CharEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return int(float64(len(text))/e.CharsPerToken) + 1
}

// EstimateMessages returns the estimated token total for a message
// sequence, including per-turn formatting overhead.
func EstimateMessages(estimator TokenEstimator, messages []provider.LLMMessage) int {
	total := 0
	for _, m := range messages {
		total += perTurnOverhead + estimateTurn(estimator, m)
	}
	return total
}

// estimateTurn sums the estimate for one message's payload. Content parts
// replace the flat content when present; tool calls count their name and
// serialized arguments.
func estimateTurn(est TokenEstimator, m provider.LLMMessage) int {
	total := 0
	if len(m.ContentParts) > 0 {
		for _, p := range m.ContentParts {
			switch p.Type {
			case provider.ContentPartText:
				total += est.Estimate(p.Text)
			case provider.ContentPartImageURL:
				total += imageTokens
			}
		}
	} else {
		total += est.Estimate(m.Content)
	}

	if m.Name != "" {
		total += est.Estimate(m.Name)
	}
	for _, call := range m.ToolCalls {
		total += est.Estimate(call.Name) + est.Estimate(string(call.Arguments))
	}
	return total
}

// EstimateTools sums per-field estimates for tool definitions.
func EstimateTools(estimator TokenEstimator, tools []provider.ToolDefinition) int {
	total := 0
	for _, t := range tools {
		total += estimator.Estimate(t.Name) + estimator.Estimate(t.Description)
		if t.Parameters == nil {
			continue
		}
		total += estimator.Estimate(string(t.Parameters))
	}
	return total
}

// EstimateToolDefinitions estimates tool definitions as the JSON the model
// actually sees. Serialization failure falls back to per-field estimation.
func EstimateToolDefinitions(estimator TokenEstimator, tools []provider.ToolDefinition) int {
	if len(tools) == 0 {
		return 0
	}
	if data, err := json.Marshal(tools); err == nil {
		return estimator.Estimate(string(data))
	}
	return EstimateTools(estimator, tools)
}

// EstimateSystemPrompt estimates a system prompt assembled from parts
// joined by blank lines.
func EstimateSystemPrompt(estimator TokenEstimator, parts []string) int {
	return estimator.Estimate(strings.Join(parts, "\n\n"))
}
