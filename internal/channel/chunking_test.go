package channel

import (
	"strings"
	"testing"

	"github.com/parleyhq/parley/pkg/message"
)

func outboundText(text string) message.OutboundMessage {
	return message.OutboundMessage{
		Channel: "mock",
		Chat:    message.Chat{ID: "c-7"},
		Blocks:  []message.ContentBlock{message.NewTextBlock(text)},
	}
}

func chunkTexts(msgs []message.OutboundMessage) []string {
	out := make([]string, len(msgs))
	for i := range msgs {
		out[i] = msgs[i].TextContent()
	}
	return out
}

func TestSplitMessagePassthrough(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		cfg  ChunkConfig
	}{
		{"zero limit disables splitting", strings.Repeat("z", 500), ChunkConfig{}},
		{"negative limit disables splitting", strings.Repeat("z", 500), ChunkConfig{MaxLength: -1}},
		{"fits within limit", "all good", ChunkConfig{MaxLength: 64}},
		{"empty text", "", ChunkConfig{MaxLength: 64}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := SplitMessage(outboundText(tt.text), tt.cfg)
			if len(got) != 1 {
				t.Fatalf("got %d messages, want 1", len(got))
			}
			if got[0].TextContent() != tt.text {
				t.Errorf("text changed: %q", got[0].TextContent())
			}
		})
	}
}

func TestSplitMessageRespectsLimit(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", 90) + "\n" + strings.Repeat("b", 90) + "\n" + strings.Repeat("c", 90)
	got := SplitMessage(outboundText(text), ChunkConfig{MaxLength: 100})
	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3", len(got))
	}
	for i, chunk := range chunkTexts(got) {
		if len(chunk) > 100 {
			t.Errorf("chunk %d is %d bytes, over the 100 limit", i, len(chunk))
		}
	}
}

func TestSplitMessagePacksLinesTogether(t *testing.T) {
	t.Parallel()

	text := "one\ntwo\nthree\n" + strings.Repeat("d", 40)
	got := SplitMessage(outboundText(text), ChunkConfig{MaxLength: 16})
	if len(got) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(got))
	}
	if first := got[0].TextContent(); first != "one\ntwo\nthree" {
		t.Errorf("first chunk = %q, want the three short lines packed together", first)
	}
}

func TestSplitMessageKeepsFittingCodeBlockWhole(t *testing.T) {
	t.Parallel()

	block := "```sql\nSELECT id FROM reminders\nWHERE due_at < now()\n```"
	text := "Here is the query:\n" + block + "\nRun it nightly."
	got := SplitMessage(outboundText(text), ChunkConfig{MaxLength: len(block) + 4, PreserveBlocks: true})

	if len(got) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(got))
	}
	whole := 0
	for _, chunk := range chunkTexts(got) {
		if strings.Contains(chunk, block) {
			whole++
		}
	}
	if whole != 1 {
		t.Errorf("code block appeared whole in %d chunks, want exactly 1", whole)
	}
}

// A code block bigger than a whole chunk cannot be preserved. The platform
// limit wins and the block is split like ordinary text.
func TestSplitMessageSplitsOversizedCodeBlock(t *testing.T) {
	t.Parallel()

	block := "```\n" + strings.Repeat("x", 150) + "\n```"
	got := SplitMessage(outboundText("intro\n"+block+"\noutro"), ChunkConfig{
		MaxLength:      50,
		PreserveBlocks: true,
	})

	if len(got) < 3 {
		t.Fatalf("got %d chunks, want at least 3", len(got))
	}
	for i, chunk := range chunkTexts(got) {
		if len(chunk) > 50 {
			t.Errorf("chunk %d is %d bytes, over the 50 limit", i, len(chunk))
		}
	}
}

func TestSplitMessageAttachmentsStayOnFirstChunk(t *testing.T) {
	t.Parallel()

	msg := message.OutboundMessage{
		Channel: "mock",
		Chat:    message.Chat{ID: "c-7"},
		Blocks: []message.ContentBlock{
			message.NewImageBlock("https://cdn.example.com/chart.png", "image/png"),
			message.NewTextBlock(strings.Repeat("a", 90) + "\n" + strings.Repeat("b", 90)),
		},
	}
	got := SplitMessage(msg, ChunkConfig{MaxLength: 100})
	if len(got) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(got))
	}

	images := func(m message.OutboundMessage) int {
		n := 0
		for _, b := range m.Blocks {
			if b.Type == message.BlockImage {
				n++
			}
		}
		return n
	}
	if images(got[0]) != 1 {
		t.Error("first chunk lost the image block")
	}
	for i, m := range got[1:] {
		if images(m) != 0 {
			t.Errorf("chunk %d carries an image block", i+1)
		}
	}
}

func TestSplitMessageCopiesRouting(t *testing.T) {
	t.Parallel()

	msg := message.OutboundMessage{
		Channel:   "telegram",
		Chat:      message.Chat{ID: "c-7", Type: message.ChatGroup},
		ThreadID:  "th-3",
		ReplyToID: "m-812",
		Hints:     &message.OutboundHints{DisablePreview: true},
		Blocks:    []message.ContentBlock{message.NewTextBlock(strings.Repeat("y", 200))},
	}
	for i, m := range SplitMessage(msg, ChunkConfig{MaxLength: 100}) {
		if m.Channel != "telegram" || m.Chat.ID != "c-7" {
			t.Errorf("chunk %d: addressing not copied: %s/%s", i, m.Channel, m.Chat.ID)
		}
		if m.ThreadID != "th-3" || m.ReplyToID != "m-812" {
			t.Errorf("chunk %d: thread routing not copied", i)
		}
		if m.Hints == nil || !m.Hints.DisablePreview {
			t.Errorf("chunk %d: hints not copied", i)
		}
	}
}

func TestSplitMessageHardWrapsUnbrokenLine(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("k", 230)
	got := SplitMessage(outboundText(long), ChunkConfig{MaxLength: 80})
	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3", len(got))
	}
	if rebuilt := strings.Join(chunkTexts(got), ""); rebuilt != long {
		t.Errorf("rebuilt %d bytes, want %d intact", len(rebuilt), len(long))
	}
}
