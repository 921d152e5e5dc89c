package channel

import (
	"strings"

	"github.com/parleyhq/parley/pkg/message"
)

// ChunkConfig controls how outbound messages are split when they exceed a
// platform's maximum message length.
type ChunkConfig struct {
	// MaxLength is the maximum number of bytes per chunk. Zero or negative
	// disables splitting.
	MaxLength int

	// PreserveBlocks keeps a fenced code block (``` ... ```) in a single
	// chunk whenever the whole block fits within MaxLength. A block larger
	// than MaxLength is split regardless, since the platform limit is hard.
	PreserveBlocks bool
}

// SplitMessage splits an outbound message into messages that each fit within
// cfg.MaxLength. Non-text blocks ride along on the first chunk. A message
// that already fits comes back as a single-element slice.
func SplitMessage(msg message.OutboundMessage, cfg ChunkConfig) []message.OutboundMessage {
	if cfg.MaxLength <= 0 {
		return []message.OutboundMessage{msg} // chunking disabled
	}

	var texts []string
	var attachments []message.ContentBlock
	for _, b := range msg.Blocks {
		if b.Type == message.BlockText {
			texts = append(texts, b.Text)
		} else {
			attachments = append(attachments, b)
		}
	}

	joined := strings.Join(texts, "\n")
	if len(joined) <= cfg.MaxLength {
		return []message.OutboundMessage{msg}
	}

	var out []message.OutboundMessage
	for i, chunk := range chunkText(joined, cfg) {
		next := msg
		next.Blocks = nil
		if i == 0 {
			next.Blocks = append(next.Blocks, attachments...)
		}
		next.Blocks = append(next.Blocks, message.NewTextBlock(chunk))
		out = append(out, next)
	}
	return out
}

// chunkText packs text into chunks of at most cfg.MaxLength bytes. With
// PreserveBlocks set, each fenced code block is packed as one unit so that
// a block which fits never straddles a chunk boundary.
func chunkText(text string, cfg ChunkConfig) []string {
	p := chunkPacker{max: cfg.MaxLength}
	for _, unit := range groupFences(strings.Split(text, "\n"), cfg.PreserveBlocks) {
		p.addUnit(unit)
	}
	p.flush()
	return p.chunks
}

// groupFences merges the lines of each fenced code block into a single
// multi-line unit. The closing fence belongs to its block. With preserve
// false, or for an unterminated fence, lines stay individual units.
func groupFences(lines []string, preserve bool) []string {
	if !preserve {
		return lines
	}

	var units []string
	var block []string
	open := false
	for _, line := range lines {
		fence := strings.HasPrefix(strings.TrimSpace(line), "```")
		switch {
		case open:
			block = append(block, line)
			if fence {
				units = append(units, strings.Join(block, "\n"))
				block = nil
				open = false
			}
		case fence:
			open = true
			block = []string{line}
		default:
			units = append(units, line)
		}
	}
	if open {
		units = append(units, block...)
	}
	return units
}

// chunkPacker accumulates lines into chunks, joining with newlines and
// starting a new chunk when the next piece would not fit.
type chunkPacker struct {
	max    int
	buf    strings.Builder
	chunks []string
}

func (p *chunkPacker) fits(s string) bool {
	need := len(s)
	if p.buf.Len() > 0 {
		need++
	}
	return p.buf.Len()+need <= p.max
}

func (p *chunkPacker) write(s string) {
	if p.buf.Len() > 0 {
		p.buf.WriteByte('\n')
	}
	p.buf.WriteString(s)
}

func (p *chunkPacker) flush() {
	if p.buf.Len() == 0 {
		return
	}
	p.chunks = append(p.chunks, p.buf.String())
	p.buf.Reset()
}

// addUnit places a unit, keeping it whole when a chunk can hold it and
// falling back to line-by-line placement when it cannot.
func (p *chunkPacker) addUnit(unit string) {
	if p.fits(unit) {
		p.write(unit)
		return
	}
	p.flush()
	if len(unit) <= p.max {
		p.write(unit)
		return
	}
	for _, line := range strings.Split(unit, "\n") {
		p.addLine(line)
	}
}

// addLine places a single line, hard-wrapping lines longer than a whole
// chunk at byte boundaries.
func (p *chunkPacker) addLine(line string) {
	if p.fits(line) {
		p.write(line)
		return
	}
	p.flush()
	for len(line) > p.max {
		p.chunks = append(p.chunks, line[:p.max])
		line = line[p.max:]
	}
	if line != "" {
		p.write(line)
	}
}
