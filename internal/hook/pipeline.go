package hook

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// entry pairs a hook with its registration sequence so that equal
// priorities keep registration order.
type entry struct {
	h   Hook
	seq int
}

// Pipeline holds registered hooks grouped by position. Registration
// takes the write lock and execution snapshots under the read lock, so
// late registration is safe while traffic flows.
type Pipeline struct {
	mu    sync.RWMutex
	hooks map[Position][]entry
	seq   int
}

// NewPipeline returns an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{hooks: make(map[Position][]entry)}
}

// Register adds a hook at its declared position. Hooks at one position
// run in ascending priority order; ties run in registration order.
func (p *Pipeline) Register(h Hook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := h.Position()
	p.hooks[pos] = append(p.hooks[pos], entry{h: h, seq: p.seq})
	p.seq++
	slices.SortStableFunc(p.hooks[pos], func(a, b entry) int {
		// cmp.Compare rather than subtraction: PriorityLast sits at
		// MaxInt, where a difference overflows.
		if d := cmp.Compare(a.h.Priority(), b.h.Priority()); d != 0 {
			return d
		}
		return cmp.Compare(a.seq, b.seq)
	})
}

// at returns a copy of the hooks registered at pos. The copy keeps
// execution independent of a concurrent Register re-sorting the slice.
func (p *Pipeline) at(pos Position) []entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.hooks[pos])
}

// run executes the hooks at pos in order, reporting each hook's action
// to onAction. Returning true from onAction stops the traversal. Hook
// errors are logged and do not stop the chain.
func (p *Pipeline) run(ctx context.Context, hctx *Context, pos Position, label string, onAction func(Action) bool) {
	for _, e := range p.at(pos) {
		action, err := e.h.Execute(ctx, hctx)
		if err != nil {
			logHookErr(hctx, label, e.h, err)
		}
		if onAction != nil && onAction(action) {
			return
		}
	}
}

// RunBeforeProcess executes the BeforeProcess hooks in order. The first
// ActionDrop short-circuits the rest.
func (p *Pipeline) RunBeforeProcess(ctx context.Context, hctx *Context) (Action, error) {
	dropped := false
	p.run(ctx, hctx, BeforeProcess, "before_process", func(a Action) bool {
		dropped = a == ActionDrop
		return dropped
	})
	if dropped {
		return ActionDrop, nil
	}
	return ActionContinue, nil
}

// RunBeforeSend executes the BeforeSend hooks in order and reports
// ActionModify when any hook rewrote the outgoing result.
func (p *Pipeline) RunBeforeSend(ctx context.Context, hctx *Context) (Action, error) {
	modified := false
	p.run(ctx, hctx, BeforeSend, "before_send", func(a Action) bool {
		modified = modified || a == ActionModify
		return false
	})
	action := ActionContinue
	if modified {
		action = ActionModify
	}
	return action, nil
}

// RunAfterSend executes the AfterSend hooks. Fire-and-forget: errors are
// logged and never reach the caller.
func (p *Pipeline) RunAfterSend(ctx context.Context, hctx *Context) {
	p.run(ctx, hctx, AfterSend, "after_send", nil)
}

func logHookErr(hctx *Context, position string, h Hook, err error) {
	if hctx.Logger == nil {
		return
	}
	hctx.Logger.Warn("hook: "+position+" error",
		"error", err,
		"priority", h.Priority(),
	)
}
