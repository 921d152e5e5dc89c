package openrouter

import "cmp"

// defaultContextWindow applies to models missing from the table when no
// override is configured.
const defaultContextWindow = 128000

// contextWindows pins the advertised window, in tokens, for the OpenRouter
// model identifiers seen most in practice.
var contextWindows = map[string]int{
	// OpenAI
	"openai/gpt-4o":       128000,
	"openai/gpt-4o-mini":  128000,
	"openai/gpt-4-turbo":  128000,
	"openai/gpt-4":        8192,
	"openai/gpt-4.1":      1048576,
	"openai/gpt-4.1-mini": 1048576,
	"openai/gpt-4.1-nano": 1048576,
	"openai/o1":           200000,
	"openai/o1-mini":      128000,
	"openai/o3":           200000,
	"openai/o3-mini":      200000,
	"openai/o4-mini":      200000,

	// Anthropic
	"anthropic/claude-3.5-sonnet": 200000,
	"anthropic/claude-3.5-haiku":  200000,
	"anthropic/claude-3.7-sonnet": 200000,
	"anthropic/claude-sonnet-4":   200000,
	"anthropic/claude-opus-4":     200000,

	// Google
	"google/gemini-2.0-flash": 1048576,
	"google/gemini-2.5-flash": 1048576,
	"google/gemini-2.5-pro":   1048576,

	// Meta
	"meta-llama/llama-3.1-405b-instruct": 131072,
	"meta-llama/llama-3.1-70b-instruct":  131072,
	"meta-llama/llama-3.3-70b-instruct":  131072,

	// Mistral
	"mistralai/mixtral-8x7b":  32768,
	"mistralai/mistral-large": 128000,

	// DeepSeek
	"deepseek/deepseek-chat": 65536,
	"deepseek/deepseek-r1":   65536,

	// OpenRouter routing meta-model
	"openrouter/auto": 128000,
}

// lookupContextWindow reports the window for model, falling back to
// defaultContextWindow for models the table does not know.
func lookupContextWindow(model string) int {
	return cmp.Or(contextWindows[model], defaultContextWindow)
}
