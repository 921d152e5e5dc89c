package agent

import (
	"encoding/json"

	"github.com/parleyhq/parley/internal/provider"
)

// repeatGuard spots a model stuck replaying the same tool call. Calls are
// keyed by name plus canonical arguments, so key order inside the JSON
// payload does not split the count.
type repeatGuard struct {
	limit int
	seen  map[string]int
}

func newRepeatGuard(limit int) *repeatGuard {
	return &repeatGuard{limit: limit, seen: make(map[string]int)}
}

// observe counts one invocation and reports whether this exact call has
// now been seen limit times.
func (g *repeatGuard) observe(name string, args json.RawMessage) bool {
	k := name + ":" + canonicalArgs(args)
	g.seen[k]++
	return g.seen[k] >= g.limit
}

// canonicalArgs re-encodes args through a map so that {"a":1,"b":2} and
// {"b":2,"a":1} collapse to one key. Arguments that fail to parse are
// keyed by their raw bytes.
func canonicalArgs(args json.RawMessage) string {
	var v any
	if json.Unmarshal(args, &v) != nil {
		return string(args)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(args)
	}
	return string(out)
}

// spendMeter sums token usage against an optional ceiling. Instances are
// confined to the goroutine driving one run and take no lock.
type spendMeter struct {
	ceiling int
	used    provider.TokenUsage
}

func newSpendMeter(ceiling int) *spendMeter {
	return &spendMeter{ceiling: ceiling}
}

func (s *spendMeter) charge(u provider.TokenUsage) {
	s.used.PromptTokens += u.PromptTokens
	s.used.CompletionTokens += u.CompletionTokens
	s.used.TotalTokens += u.TotalTokens
}

// drained reports whether cumulative usage has reached the ceiling. A
// ceiling of zero disables the check.
func (s *spendMeter) drained() bool {
	return s.ceiling > 0 && s.used.TotalTokens >= s.ceiling
}

func (s *spendMeter) spent() provider.TokenUsage {
	return s.used
}
