package router

import (
	"testing"

	"github.com/parleyhq/parley/pkg/message"
)

// policyMsg builds the minimal message a policy check looks at. mentioned
// may be nil to model channels that never report mention state.
func policyMsg(chatType message.ChatType, sender string, mentioned *bool) message.InboundMessage {
	msg := message.InboundMessage{
		ID:      "m-1",
		Channel: "slack",
		Chat:    message.Chat{ID: "room-9", Type: chatType},
		Sender:  message.Sender{ID: sender, Username: "someone"},
		Blocks:  []message.ContentBlock{message.NewTextBlock("ping")},
	}
	if mentioned != nil {
		msg.Mentions = &message.Mentions{IsMentioned: *mentioned}
	}
	return msg
}

func TestGroupPolicyShouldProcess(t *testing.T) {
	t.Parallel()

	yes, no := true, false

	tests := []struct {
		name   string
		policy GroupPolicy
		msg    message.InboundMessage
		want   bool
	}{
		{
			name:   "group without mention is skipped",
			policy: GroupPolicy{Mode: GroupPolicyRequireMention},
			msg:    policyMsg(message.ChatGroup, "u-1", &no),
			want:   false,
		},
		{
			name:   "group with mention is processed",
			policy: GroupPolicy{Mode: GroupPolicyRequireMention},
			msg:    policyMsg(message.ChatGroup, "u-1", &yes),
			want:   true,
		},
		{
			name:   "missing mention info counts as no mention",
			policy: GroupPolicy{Mode: GroupPolicyRequireMention},
			msg:    policyMsg(message.ChatGroup, "u-1", nil),
			want:   false,
		},
		{
			name:   "allowlisted sender skips the mention requirement",
			policy: GroupPolicy{Mode: GroupPolicyRequireMention, Allowlist: []string{"u-1"}},
			msg:    policyMsg(message.ChatGroup, "u-1", &no),
			want:   true,
		},
		{
			name:   "denylisted sender is dropped even when mentioned",
			policy: GroupPolicy{Mode: GroupPolicyRequireMention, Denylist: []string{"u-9"}},
			msg:    policyMsg(message.ChatGroup, "u-9", &yes),
			want:   false,
		},
		{
			name:   "denylist applies under allow_all too",
			policy: GroupPolicy{Mode: GroupPolicyAllowAll, Denylist: []string{"u-9"}},
			msg:    policyMsg(message.ChatGroup, "u-9", nil),
			want:   false,
		},
		{
			name:   "dm bypasses the denylist",
			policy: GroupPolicy{Mode: GroupPolicyRequireMention, Denylist: []string{"u-1"}},
			msg:    policyMsg(message.ChatDM, "u-1", nil),
			want:   true,
		},
		{
			name:   "allow_all processes unmentioned group traffic",
			policy: GroupPolicy{Mode: GroupPolicyAllowAll},
			msg:    policyMsg(message.ChatGroup, "u-1", nil),
			want:   true,
		},
		{
			name:   "unknown mode fails closed",
			policy: GroupPolicy{Mode: "everything"},
			msg:    policyMsg(message.ChatGroup, "u-1", &yes),
			want:   false,
		},
		{
			name:   "zero-value policy fails closed",
			policy: GroupPolicy{},
			msg:    policyMsg(message.ChatGroup, "u-1", &yes),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.policy.ShouldProcess(tt.msg); got != tt.want {
				t.Errorf("ShouldProcess() = %v, want %v", got, tt.want)
			}
		})
	}
}
