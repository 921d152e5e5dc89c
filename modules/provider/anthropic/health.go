package anthropic

import (
	"context"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
)

// HealthCheck probes connectivity and authentication with a 1-token
// completion. The Messages API has no dedicated health endpoint, so a
// minimal completion is the cheapest request that exercises auth.
func (p *Provider) HealthCheck(ctx context.Context) error {
	probe := sdkanthropic.MessageNewParams{
		Model:     sdkanthropic.Model(p.currentModel()),
		MaxTokens: 1,
		Messages:  []sdkanthropic.MessageParam{sdkanthropic.NewUserMessage(sdkanthropic.NewTextBlock("hi"))},
	}
	_, err := p.client.Messages.New(ctx, probe)
	return mapError(err)
}
