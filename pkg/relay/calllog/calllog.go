// Package calllog records per-turn operational data for relay calls. Entries
// are written after each turn and are never read back into a conversation.
package calllog

import "context"

// TurnLog is one completed (or failed) conversation turn.
type TurnLog struct {
	SessionID     string
	CallSID       string
	Path          string
	Turn          int
	UserText      string
	AssistantText string
	Sentences     int
	ErrorMessage  string
	DurationMS    int64
}

type Recorder interface {
	RecordTurn(ctx context.Context, t TurnLog) error
}

// Nop discards every record. Used when no database is configured.
type Nop struct{}

func (Nop) RecordTurn(context.Context, TurnLog) error { return nil }
