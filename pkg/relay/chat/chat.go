// Package chat defines the conversation turn shape shared by the session and
// the backend client.
package chat

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in a conversation history. Immutable once appended.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
