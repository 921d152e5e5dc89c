package app

import (
	"context"
	"errors"
	"strings"

	"github.com/parleyhq/parley/internal/provider"
)

// chainProvider exposes one chain role through the plain Provider interface
// for collaborators that are unaware of roles. Requests keep the chain's
// failover and health tracking; the metadata accessors reflect whichever
// entry currently serves the role.
type chainProvider struct {
	chain *provider.Chain
	role  provider.Role
}

func (c *chainProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	return c.chain.Complete(ctx, c.role, req)
}

func (c *chainProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	return c.chain.Stream(ctx, c.role, req)
}

func (c *chainProvider) ContextWindowSize() int {
	if p, err := c.chain.GetProvider(c.role); err == nil {
		return p.ContextWindowSize()
	}
	return 0
}

func (c *chainProvider) ModelName() string {
	if p, err := c.chain.GetProvider(c.role); err == nil {
		return p.ModelName()
	}
	return ""
}

// summaryPrompt instructs the model when folding old history into one
// synthetic turn.
const summaryPrompt = `Please summarize the following conversation concisely.

Focus on:
- Key topics discussed
- Important decisions or conclusions
- Any pending tasks or questions
- Tool executions and their outcomes

Provide a concise summary:`

// chainSummarizer condenses conversation history through the chain's
// internal role so the primary model's quota is not spent on compaction.
// Chains without an internal entry fall back to primary.
type chainSummarizer struct {
	chain *provider.Chain
}

func (s *chainSummarizer) Summarize(ctx context.Context, messages []provider.LLMMessage) (string, error) {
	req := provider.CompletionRequest{
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleSystem, Content: summaryPrompt},
			{Role: provider.MessageRoleUser, Content: renderTranscript(messages)},
		},
	}

	resp, err := s.chain.Complete(ctx, provider.RoleInternal, req)
	if errors.Is(err, provider.ErrNoProvider) {
		resp, err = s.chain.Complete(ctx, provider.RolePrimary, req)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// renderTranscript flattens turns into "role: content" lines for the
// summarization request. Image parts carry no text worth summarizing and
// are skipped.
func renderTranscript(messages []provider.LLMMessage) string {
	var b strings.Builder
	for _, m := range messages {
		content := m.Content
		if content == "" {
			for _, part := range m.ContentParts {
				if part.Type == provider.ContentPartText && part.Text != "" {
					content = part.Text
					break
				}
			}
		}
		if content == "" {
			continue
		}
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(content)
		b.WriteByte('\n')
	}
	return b.String()
}
