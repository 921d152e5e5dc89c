package workspace

import (
	"fmt"
	"log/slog"
	"time"

	ctxengine "github.com/parleyhq/parley/internal/context"
	"github.com/parleyhq/parley/pkg/message"
)

// DefaultSkillTokenBudget caps the token share of the skills section.
const DefaultSkillTokenBudget = 2000

// PromptConfig configures a Prompt.
type PromptConfig struct {
	// Persona supplies the personality text. Nil falls back to DefaultPersona.
	Persona PersonaProvider

	// SkillsDir is scanned for SKILL.md files on every build so new skills
	// are picked up without a restart. Empty disables the skills section.
	SkillsDir string

	// AvailableTools returns the registered tool names used for skill
	// activation. Nil means no tools, which deactivates every skill.
	AvailableTools func() []string

	// Estimator and SkillTokenBudget bound the skills section. A nil
	// estimator gets a character-ratio default; a zero budget gets
	// DefaultSkillTokenBudget.
	Estimator        ctxengine.TokenEstimator
	SkillTokenBudget int

	Logger *slog.Logger

	// Now is injectable for tests. Nil means time.Now.
	Now func() time.Time
}

// Prompt assembles the conversation-independent system turns for a message:
// persona, current date, chat context, and active skills. It implements the
// router's prompt source.
type Prompt struct {
	persona     PersonaProvider
	skillsDir   string
	toolNames   func() []string
	estimator   ctxengine.TokenEstimator
	skillBudget int
	logger      *slog.Logger
	now         func() time.Time
}

// NewPrompt creates a Prompt from the given config, applying defaults.
func NewPrompt(cfg PromptConfig) *Prompt {
	p := &Prompt{
		persona:     cfg.Persona,
		skillsDir:   cfg.SkillsDir,
		toolNames:   cfg.AvailableTools,
		estimator:   cfg.Estimator,
		skillBudget: cfg.SkillTokenBudget,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
	if p.estimator == nil {
		p.estimator = ctxengine.NewCharEstimator(0)
	}
	if p.skillBudget <= 0 {
		p.skillBudget = DefaultSkillTokenBudget
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// SystemParts returns the system turns to prepend to the model input for
// the given message. Always at least persona, date, and chat context; the
// skills section is appended when any skill activates.
func (p *Prompt) SystemParts(msg message.InboundMessage) []string {
	parts := []string{
		p.personaPart(),
		"Current date: " + p.now().Format("Monday, 2 January 2006") + ".",
		chatContextPart(msg),
	}
	if skills := p.skillsPart(msg); skills != "" {
		parts = append(parts, skills)
	}
	return parts
}

// personaPart loads the persona, degrading to the default on read errors.
func (p *Prompt) personaPart() string {
	if p.persona == nil {
		return DefaultPersona
	}
	content, err := p.persona.Load()
	if err != nil {
		p.logger.Warn("workspace: persona load failed", "error", err)
		return DefaultPersona
	}
	return content
}

// chatContextPart describes where the conversation is taking place.
func chatContextPart(msg message.InboundMessage) string {
	switch {
	case msg.Chat.IsDirectMessage():
		return fmt.Sprintf("You are in a direct message with %s on %s.",
			msg.Sender.Name(), msg.Channel)
	case msg.Chat.Title != "":
		return fmt.Sprintf("You are in the group %q on %s. The current message is from %s.",
			msg.Chat.Title, msg.Channel, msg.Sender.Name())
	default:
		return fmt.Sprintf("You are in a group chat on %s. The current message is from %s.",
			msg.Channel, msg.Sender.Name())
	}
}

// skillsPart scans, activates, prunes, and formats the skills section.
// Scan failures log at warn and yield an empty section.
func (p *Prompt) skillsPart(msg message.InboundMessage) string {
	if p.skillsDir == "" {
		return ""
	}

	skills, err := LoadSkillsFromDir(p.skillsDir)
	if err != nil {
		p.logger.Warn("workspace: skill scan failed", "dir", p.skillsDir, "error", err)
		return ""
	}
	if len(skills) == 0 {
		return ""
	}

	var tools []string
	if p.toolNames != nil {
		tools = p.toolNames()
	}

	active := ActivateSkills(ActivateRequest{
		Skills:         skills,
		UserMessage:    msg.TextContent(),
		AvailableTools: tools,
	})
	active = PruneSkillsToFit(active, p.skillBudget, p.estimator)

	return FormatSkillsForPrompt(active)
}
