package workspace

import (
	"slices"
	"strings"

	ctxengine "github.com/parleyhq/parley/internal/context"
)

// FormatSkillsForPrompt renders active skills as a markdown section for
// inclusion in the system prompt. No skills, no section: the empty
// string comes back.
func FormatSkillsForPrompt(skills []Skill) string {
	if len(skills) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Active Skills")
	for _, skill := range skills {
		b.WriteString("\n\n### " + skill.Meta.Name)
		if skill.Meta.Description != "" {
			b.WriteString("\n" + skill.Meta.Description)
		}
		if skill.Body != "" {
			b.WriteString("\n\n" + skill.Body)
		}
	}
	return b.String()
}

// PruneSkillsToFit drops skills until the rendered section fits budget
// tokens. Auto-triggered skills go first, then manual ones, both from
// the back of the list. Skills with trigger always survive every round;
// a zero budget leaves only them.
func PruneSkillsToFit(skills []Skill, budget int, est ctxengine.TokenEstimator) []Skill {
	if budget <= 0 {
		return filterAlways(skills)
	}
	if fitsBudget(skills, budget, est) {
		return skills
	}

	// Prune a copy, the caller keeps its slice.
	pruned := make([]Skill, len(skills))
	copy(pruned, skills)
	pruned = pruneByTrigger(pruned, TriggerAuto, budget, est)
	if fitsBudget(pruned, budget, est) {
		return pruned
	}
	return pruneByTrigger(pruned, TriggerManual, budget, est)
}

// pruneByTrigger removes skills of the given trigger mode, last first,
// until the rendered output fits budget.
func pruneByTrigger(skills []Skill, trigger TriggerMode, budget int, est ctxengine.TokenEstimator) []Skill {
	for i := len(skills) - 1; i >= 0 && !fitsBudget(skills, budget, est); i-- {
		if skills[i].Meta.Trigger != trigger {
			continue
		}
		skills = slices.Delete(skills, i, i+1)
	}
	return skills
}

// fitsBudget reports whether the rendered skills fit the token budget.
func fitsBudget(skills []Skill, budget int, est ctxengine.TokenEstimator) bool {
	return est.Estimate(FormatSkillsForPrompt(skills)) <= budget
}

// filterAlways keeps only the skills with trigger always.
func filterAlways(skills []Skill) []Skill {
	var keep []Skill
	for _, s := range skills {
		if s.Meta.Trigger == TriggerAlways {
			keep = append(keep, s)
		}
	}
	return keep
}
