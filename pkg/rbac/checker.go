package rbac

// CanPerform reports whether role may perform action. Unknown roles have no
// capabilities.
func CanPerform(role Role, action Action) bool {
	for _, allowed := range capabilities[role] {
		if allowed == action {
			return true
		}
	}
	return false
}

// Capabilities returns a copy of the actions granted to role
func Capabilities(role Role) []Action {
	actions := capabilities[role]
	out := make([]Action, len(actions))
	copy(out, actions)
	return out
}
