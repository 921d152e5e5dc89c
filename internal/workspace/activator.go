package workspace

import (
	"slices"
	"strings"
)

// ActivateRequest bundles the inputs to one activation decision.
type ActivateRequest struct {
	Skills      []Skill
	UserMessage string

	// AvailableTools gates activation: a skill only joins when every
	// tool it requires is present.
	AvailableTools []string

	// ManuallyActive lists skill names the user switched on explicitly.
	ManuallyActive []string
}

// ActivateSkills selects which skills should be active for the given
// request. Skills whose required tools are not all available are excluded;
// a skill that requires no tools is never activated.
//
// The result is ordered by trigger mode: always, then auto (keyword match
// in the message), then manual (name listed in ManuallyActive). Within a
// mode the input order is preserved.
func ActivateSkills(req ActivateRequest) []Skill {
	toolSet := stringSet(req.AvailableTools)
	manualSet := stringSet(req.ManuallyActive)
	lowerMsg := strings.ToLower(req.UserMessage)

	var always, auto, manual []Skill
	for _, sk := range req.Skills {
		if !hasRequiredTools(sk, toolSet) {
			continue
		}
		switch sk.Meta.Trigger {
		case TriggerAlways:
			always = append(always, sk)
		case TriggerAuto:
			if keywordMatch(sk, lowerMsg) {
				auto = append(auto, sk)
			}
		case TriggerManual:
			if manualSet[sk.Meta.Name] {
				manual = append(manual, sk)
			}
		}
	}

	result := append(always, auto...)
	return append(result, manual...)
}

// hasRequiredTools reports whether every tool the skill needs is
// available. A skill that declares no tools never activates.
func hasRequiredTools(sk Skill, available map[string]bool) bool {
	need := sk.Meta.ToolsRequired
	if len(need) == 0 {
		return false
	}
	missing := slices.ContainsFunc(need, func(name string) bool { return !available[name] })
	return !missing
}

// keywordMatch reports whether any skill keyword appears in the
// lowercased message.
func keywordMatch(sk Skill, lowerMsg string) bool {
	return slices.ContainsFunc(sk.Meta.Keywords, func(kw string) bool {
		return strings.Contains(lowerMsg, strings.ToLower(kw))
	})
}

// stringSet builds a set for O(1) membership checks.
func stringSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it] = true
	}
	return out
}
