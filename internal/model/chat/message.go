package chat

import "time"

// Role tags who produced a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Turn is one role-tagged message in a conversation. Turns are never
// mutated once appended to a Session.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// SystemTurn, UserTurn and AssistantTurn build turns stamped with the current time.
func SystemTurn(content string) Turn { return newTurn(RoleSystem, content) }

func UserTurn(content string) Turn { return newTurn(RoleUser, content) }

func AssistantTurn(content string) Turn { return newTurn(RoleAssistant, content) }

func newTurn(role Role, content string) Turn {
	return Turn{Role: role, Content: content, CreatedAt: time.Now().UTC()}
}
