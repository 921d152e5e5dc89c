package ctxengine_test

import (
	"encoding/json"
	"strings"
	"testing"

	ctxengine "github.com/parleyhq/parley/internal/context"
	"github.com/parleyhq/parley/internal/provider"
)

var _ ctxengine.TokenEstimator = (*ctxengine.CharEstimator)(nil)

func TestCharEstimatorRatio(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name  string
		ratio float64
		want  float64
	}{
		{"explicit", 3.0, 3.0},
		{"zero falls back", 0, 4.0},
		{"negative falls back", -1.5, 4.0},
		{"wide ratio kept", 10.0, 10.0},
	} {
		if got := ctxengine.NewCharEstimator(tt.ratio).CharsPerToken; got != tt.want {
			t.Errorf("%s: CharsPerToken = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCharEstimatorEstimate(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name  string
		ratio float64
		text  string
		want  int
	}{
		{"empty is free", 0, "", 0},
		{"one char rounds up", 0, "a", 1},
		{"five chars", 0, "remind", 2},
		{"exact multiple still rounds", 0, "abcd", 2},
		{"thirteen chars", 0, "hello world!!", 4},
		{"french ratio", 3.0, "hello world", 4},
		{"french ratio empty", 3.0, "", 0},
		{"bad ratio estimates like default", -2.0, "hello", 2},
	} {
		if got := ctxengine.NewCharEstimator(tt.ratio).Estimate(tt.text); got != tt.want {
			t.Errorf("%s: Estimate(%q) = %d, want %d", tt.name, tt.text, got, tt.want)
		}
	}
}

// Estimate counts bytes, not runes, so non-ASCII text estimates higher.
// That is the safe direction for a budget.
func TestCharEstimatorEstimateMultibyte(t *testing.T) {
	t.Parallel()

	est := ctxengine.NewCharEstimator(4.0)
	ascii := est.Estimate("naive")
	accented := est.Estimate("naïve")
	if accented < ascii {
		t.Errorf("Estimate multibyte = %d, want >= %d", accented, ascii)
	}
}

func TestContextBudgetAccounting(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name          string
		budget        ctxengine.ContextBudget
		wantUsed      int
		wantAvailable int
		wantExceeded  bool
	}{
		{
			name:     "zero value",
			budget:   ctxengine.ContextBudget{},
			wantUsed: 0, wantAvailable: 0, wantExceeded: false,
		},
		{
			name: "room to spare",
			budget: ctxengine.ContextBudget{
				WindowSize: 1000,
				System:     100,
				Tools:      50,
				History:    230,
				Reserved:   100,
			},
			wantUsed: 480, wantAvailable: 520, wantExceeded: false,
		},
		{
			name: "over budget",
			budget: ctxengine.ContextBudget{
				WindowSize: 100,
				System:     50,
				Tools:      40,
				History:    20,
				Reserved:   10,
			},
			wantUsed: 120, wantAvailable: 0, wantExceeded: true,
		},
		{
			name: "filled exactly",
			budget: ctxengine.ContextBudget{
				WindowSize: 100,
				System:     40,
				Tools:      30,
				History:    20,
				Reserved:   10,
			},
			wantUsed: 100, wantAvailable: 0, wantExceeded: false,
		},
		{
			name:     "one section only",
			budget:   ctxengine.ContextBudget{WindowSize: 50, System: 42},
			wantUsed: 42, wantAvailable: 8, wantExceeded: false,
		},
	} {
		b := tt.budget
		if got := b.Used(); got != tt.wantUsed {
			t.Errorf("%s: Used() = %d, want %d", tt.name, got, tt.wantUsed)
		}
		if got := b.Available(); got != tt.wantAvailable {
			t.Errorf("%s: Available() = %d, want %d", tt.name, got, tt.wantAvailable)
		}
		if got := b.Exceeded(); got != tt.wantExceeded {
			t.Errorf("%s: Exceeded() = %v, want %v", tt.name, got, tt.wantExceeded)
		}
		// Within the window, the two sides partition it.
		if !b.Exceeded() && b.Used()+b.Available() != b.WindowSize {
			t.Errorf("%s: Used+Available = %d, want %d", tt.name, b.Used()+b.Available(), b.WindowSize)
		}
	}
}

func TestEstimateMessagesPlainText(t *testing.T) {
	t.Parallel()

	est := ctxengine.NewCharEstimator(4.0)

	if got := ctxengine.EstimateMessages(est, nil); got != 0 {
		t.Fatalf("EstimateMessages(nil) = %d, want 0", got)
	}

	msgs := []provider.LLMMessage{
		{Role: provider.MessageRoleUser, Content: "remind me tomorrow at nine"},
	}
	want := 4 + est.Estimate("remind me tomorrow at nine")
	if got := ctxengine.EstimateMessages(est, msgs); got != want {
		t.Errorf("EstimateMessages = %d, want %d", got, want)
	}
}

func TestEstimateMessagesCountsNameAndToolCalls(t *testing.T) {
	t.Parallel()

	est := ctxengine.NewCharEstimator(4.0)
	args := json.RawMessage(`{"when":"tomorrow 09:00"}`)

	msgs := []provider.LLMMessage{
		{Role: provider.MessageRoleTool, Content: "reminder stored", Name: "schedule"},
		{
			Role:    provider.MessageRoleAssistant,
			Content: "setting it up",
			ToolCalls: []provider.ToolCall{
				{ID: "call-1", Name: "schedule", Arguments: args},
			},
		},
	}

	want := 4 + est.Estimate("reminder stored") + est.Estimate("schedule") +
		4 + est.Estimate("setting it up") + est.Estimate("schedule") + est.Estimate(string(args))
	if got := ctxengine.EstimateMessages(est, msgs); got != want {
		t.Errorf("EstimateMessages = %d, want %d", got, want)
	}
}

func TestEstimateMessagesImagePartsAreFlatRate(t *testing.T) {
	t.Parallel()

	est := ctxengine.NewCharEstimator(4.0)
	msgs := []provider.LLMMessage{
		{
			Role: provider.MessageRoleUser,
			ContentParts: []provider.ContentPart{
				{Type: provider.ContentPartImageURL, ImageURL: "https://cdn.example.net/receipt.png"},
				{Type: provider.ContentPartText, Text: "what did I pay here?"},
			},
		},
	}

	want := 4 + 765 + est.Estimate("what did I pay here?")
	if got := ctxengine.EstimateMessages(est, msgs); got != want {
		t.Errorf("EstimateMessages = %d, want %d", got, want)
	}
}

// A message carrying parts is estimated from the parts alone; the flat
// Content field does not double-count.
func TestEstimateMessagesPartsShadowContent(t *testing.T) {
	t.Parallel()

	est := ctxengine.NewCharEstimator(4.0)
	msgs := []provider.LLMMessage{
		{
			Role:    provider.MessageRoleUser,
			Content: strings.Repeat("x", 4000),
			ContentParts: []provider.ContentPart{
				{Type: provider.ContentPartText, Text: "short"},
			},
		},
	}

	want := 4 + est.Estimate("short")
	if got := ctxengine.EstimateMessages(est, msgs); got != want {
		t.Errorf("EstimateMessages = %d, want %d", got, want)
	}
}

func TestEstimateToolsSumsFields(t *testing.T) {
	t.Parallel()

	est := ctxengine.NewCharEstimator(4.0)
	params := json.RawMessage(`{"type":"object","properties":{"when":{"type":"string"}}}`)

	tools := []provider.ToolDefinition{
		{Name: "schedule", Description: "Store a reminder for later delivery", Parameters: params},
		{Name: "cancel", Description: "Drop a pending reminder"},
	}

	want := est.Estimate("schedule") + est.Estimate("Store a reminder for later delivery") + est.Estimate(string(params)) +
		est.Estimate("cancel") + est.Estimate("Drop a pending reminder")
	if got := ctxengine.EstimateTools(est, tools); got != want {
		t.Errorf("EstimateTools = %d, want %d", got, want)
	}
}

func TestEstimateToolDefinitionsUsesWireShape(t *testing.T) {
	t.Parallel()

	est := ctxengine.NewCharEstimator(4.0)

	if got := ctxengine.EstimateToolDefinitions(est, nil); got != 0 {
		t.Fatalf("EstimateToolDefinitions(nil) = %d, want 0", got)
	}

	tools := []provider.ToolDefinition{
		{Name: "schedule", Description: "Store a reminder"},
	}

	// The serialized definition carries JSON structure the per-field sum
	// does not, so the wire estimate is at least as large.
	wire := ctxengine.EstimateToolDefinitions(est, tools)
	fields := ctxengine.EstimateTools(est, tools)
	if wire < fields {
		t.Errorf("wire estimate %d < per-field estimate %d", wire, fields)
	}
}

func TestEstimateSystemPrompt(t *testing.T) {
	t.Parallel()

	est := ctxengine.NewCharEstimator(4.0)

	if got := ctxengine.EstimateSystemPrompt(est, nil); got != 0 {
		t.Fatalf("EstimateSystemPrompt(nil) = %d, want 0", got)
	}

	parts := []string{"You are a scheduling assistant", "Today is Tuesday", "Prefer short answers"}
	want := est.Estimate(strings.Join(parts, "\n\n"))
	if got := ctxengine.EstimateSystemPrompt(est, parts); got != want {
		t.Errorf("EstimateSystemPrompt = %d, want %d", got, want)
	}
}
