package tool

// Grants maps a role name to the scopes users holding that role may
// exercise. Role names are platform-defined (e.g., Discord role names).
type Grants map[string][]Scope

// Filter returns the subset of tools visible to a user holding the given
// roles. It is a pure function of its arguments.
//
// A tool is visible when every scope it declares is granted to at least one
// of the roles. A nil grants table grants all non-admin scopes to everyone;
// ScopeAdmin always requires an explicit grant, so admin tools are hidden
// by default.
func Filter(roles []string, grants Grants, tools []Tool) []Tool {
	visible := make([]Tool, 0, len(tools))
	for _, t := range tools {
		if scopesGranted(t.Scopes(), roles, grants) {
			visible = append(visible, t)
		}
	}
	return visible
}

func scopesGranted(scopes []Scope, roles []string, grants Grants) bool {
	for _, s := range scopes {
		if !scopeGranted(s, roles, grants) {
			return false
		}
	}
	return len(scopes) > 0
}

func scopeGranted(s Scope, roles []string, grants Grants) bool {
	if grants == nil {
		return s != ScopeAdmin
	}
	for _, role := range roles {
		for _, granted := range grants[role] {
			if granted == s {
				return true
			}
		}
	}
	return false
}
