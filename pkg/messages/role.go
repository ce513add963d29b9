package messages

import "strings"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleUnknown   Role = "unknown"
)

// ParseRole maps a vendor role name onto the canonical roles.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "system", "developer":
		return RoleSystem
	case "user", "human":
		return RoleUser
	case "assistant", "model", "chatbot", "ai":
		return RoleAssistant
	case "tool", "function", "ipython":
		return RoleTool
	default:
		return RoleUnknown
	}
}

func (r Role) String() string {
	return string(r)
}

// IsKnown reports whether r is one of the four canonical authoring roles.
func (r Role) IsKnown() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}
