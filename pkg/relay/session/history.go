package session

import "github.com/kaiwa-labs/kaiwa/pkg/relay/chat"

// history is the per-session conversation transcript sent to the backend on
// every turn. It is only touched from the session's event loop.
type history struct {
	turns []chat.Turn
}

func newHistory(systemPrompt string) *history {
	turns := make([]chat.Turn, 0, 16)
	turns = append(turns, chat.Turn{Role: chat.RoleSystem, Content: systemPrompt})
	return &history{turns: turns}
}

func (h *history) appendUser(text string) {
	h.turns = append(h.turns, chat.Turn{Role: chat.RoleUser, Content: text})
}

func (h *history) appendAssistant(text string) {
	h.turns = append(h.turns, chat.Turn{Role: chat.RoleAssistant, Content: text})
}

func (h *history) snapshot() []chat.Turn {
	out := make([]chat.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *history) len() int {
	return len(h.turns)
}
