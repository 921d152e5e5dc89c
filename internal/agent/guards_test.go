package agent

import (
	"encoding/json"
	"testing"

	"github.com/parleyhq/parley/internal/provider"
)

func TestRepeatGuard_CountsToLimit(t *testing.T) {
	t.Parallel()
	g := newRepeatGuard(3)

	args := json.RawMessage(`{"path":"notes.md"}`)
	if g.observe("read", args) {
		t.Error("first sighting tripped the guard")
	}
	if g.observe("read", args) {
		t.Error("second sighting tripped the guard")
	}
	if !g.observe("read", args) {
		t.Error("third sighting should trip the guard")
	}
}

func TestRepeatGuard_KeyOrderInsensitive(t *testing.T) {
	t.Parallel()
	g := newRepeatGuard(2)

	g.observe("search", json.RawMessage(`{"q":"go","page":2}`))
	if !g.observe("search", json.RawMessage(`{"page":2,"q":"go"}`)) {
		t.Error("reordered keys should count as the same call")
	}
}

func TestRepeatGuard_DistinguishesCalls(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		toolA      string
		argsA      string
		toolB      string
		argsB      string
	}{
		{"different args", "read", `{"path":"a.md"}`, "read", `{"path":"b.md"}`},
		{"different tools", "read", `{"path":"a.md"}`, "write", `{"path":"a.md"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := newRepeatGuard(2)
			g.observe(tt.toolA, json.RawMessage(tt.argsA))
			if g.observe(tt.toolB, json.RawMessage(tt.argsB)) {
				t.Error("distinct calls tripped the guard")
			}
		})
	}
}

func TestRepeatGuard_InvalidJSONKeyedByBytes(t *testing.T) {
	t.Parallel()
	g := newRepeatGuard(2)

	g.observe("raw", json.RawMessage(`not json at all`))
	if !g.observe("raw", json.RawMessage(`not json at all`)) {
		t.Error("identical invalid payloads should count together")
	}
}

func TestSpendMeter_Accumulates(t *testing.T) {
	t.Parallel()
	m := newSpendMeter(1000)

	m.charge(provider.TokenUsage{PromptTokens: 120, CompletionTokens: 40, TotalTokens: 160})
	m.charge(provider.TokenUsage{PromptTokens: 300, CompletionTokens: 90, TotalTokens: 390})

	got := m.spent()
	if got.PromptTokens != 420 || got.CompletionTokens != 130 || got.TotalTokens != 550 {
		t.Errorf("spent = %+v, want 420/130/550", got)
	}
	if m.drained() {
		t.Error("550 of 1000 should not drain the meter")
	}
}

func TestSpendMeter_DrainsAtCeiling(t *testing.T) {
	t.Parallel()
	m := newSpendMeter(500)

	m.charge(provider.TokenUsage{TotalTokens: 500})
	if !m.drained() {
		t.Error("reaching the ceiling exactly should drain the meter")
	}
}

func TestSpendMeter_ZeroCeilingNeverDrains(t *testing.T) {
	t.Parallel()
	m := newSpendMeter(0)

	m.charge(provider.TokenUsage{TotalTokens: 1 << 30})
	if m.drained() {
		t.Error("a zero ceiling disables the check")
	}
}
