// Package ctxengine builds the model input sequence for a conversation:
// platform history in, ordered LLM messages out, with tool-call replay,
// reset truncation, and threshold-triggered summarization.
package ctxengine

// DefaultReservedForReply is the token allowance kept for the model's
// response when none is configured.
const DefaultReservedForReply = 1024

// ContextConfig holds the tuning knobs for the context engine.
type ContextConfig struct {
	// MaxTurns triggers summarization when the assembled sequence exceeds
	// this many turns.
	MaxTurns int

	// SummarizeOldest is the number of oldest turns folded into the
	// synthetic summary turn.
	SummarizeOldest int

	// RetainRecent is the number of most-recent turns kept verbatim after
	// summarization. Turns between the summarized head and the retained
	// tail are discarded.
	RetainRecent int

	// EmergencyRetain is the number of turns kept after an emergency
	// compaction (triggered by ErrContextLength).
	EmergencyRetain int

	// VoiceNoteFilename is the reserved attachment filename that marks a
	// voice note. Matching attachments are transcribed instead of being
	// listed with the generic attachments.
	VoiceNoteFilename string

	// MaxContextTokens overrides the provider's ContextWindowSize().
	// 0 means use the provider's reported value.
	MaxContextTokens int

	// ReservedForReply is the number of tokens reserved for the model's response.
	ReservedForReply int
}

// withDefaults returns a copy of cfg with zero tuning fields filled in.
func (cfg ContextConfig) withDefaults() ContextConfig {
	if cfg.MaxTurns == 0 {
		cfg.MaxTurns = 25
	}
	if cfg.SummarizeOldest == 0 {
		cfg.SummarizeOldest = 10
	}
	if cfg.RetainRecent == 0 {
		cfg.RetainRecent = 10
	}
	if cfg.EmergencyRetain == 0 {
		cfg.EmergencyRetain = 5
	}
	if cfg.VoiceNoteFilename == "" {
		cfg.VoiceNoteFilename = "voice-message.ogg"
	}
	if cfg.ReservedForReply == 0 {
		cfg.ReservedForReply = DefaultReservedForReply
	}
	return cfg
}
