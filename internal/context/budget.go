package ctxengine

// ContextBudget tracks token allocation across the sections of one model
// request.
type ContextBudget struct {
	WindowSize int // total context window in tokens
	System     int // system prompt turns
	Tools      int // tool schemas
	History    int // conversation history
	Reserved   int // held back for the model reply
}

// Used returns the tokens consumed across all sections, reserve included.
func (b ContextBudget) Used() int {
	return b.System + b.Tools + b.History + b.Reserved
}

// Available returns the tokens left for additional content, never negative.
func (b ContextBudget) Available() int {
	return max(b.WindowSize-b.Used(), 0)
}

// Exceeded reports whether usage overflows the window.
func (b ContextBudget) Exceeded() bool {
	return b.Used() > b.WindowSize
}
