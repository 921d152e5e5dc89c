package router

import (
	"slices"

	"github.com/parleyhq/parley/pkg/message"
)

// GroupPolicyMode selects how group-chat messages are admitted.
type GroupPolicyMode string

const (
	// GroupPolicyRequireMention admits group messages only when the
	// bot is mentioned.
	GroupPolicyRequireMention GroupPolicyMode = "require_mention"

	// GroupPolicyAllowAll admits every group message.
	GroupPolicyAllowAll GroupPolicyMode = "allow_all"
)

// GroupPolicy gates group-chat traffic before it reaches a session.
// Direct messages bypass it entirely.
type GroupPolicy struct {
	Mode GroupPolicyMode

	// Allowlist and Denylist hold sender IDs; deny wins.
	Allowlist []string
	Denylist  []string
}

// ShouldProcess reports whether the message passes the policy. The
// denylist wins over everything else; the allowlist exempts a sender
// from the mention requirement. An unknown mode admits nothing.
func (p GroupPolicy) ShouldProcess(msg message.InboundMessage) bool {
	if msg.IsDirectMessage() {
		return true
	}

	sender := msg.Sender.ID
	if slices.Contains(p.Denylist, sender) {
		return false
	}
	switch p.Mode {
	case GroupPolicyRequireMention:
		return slices.Contains(p.Allowlist, sender) || mentioned(msg)
	case GroupPolicyAllowAll:
		return true
	default:
		return false
	}
}

func mentioned(msg message.InboundMessage) bool {
	return msg.Mentions != nil && msg.Mentions.IsMentioned
}
