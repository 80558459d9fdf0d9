// Package protocol defines the JSON frames exchanged with the telephony
// relay over the WebSocket connection.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	TypeSetup  = "setup"
	TypePrompt = "prompt"
	TypeText   = "text"
	TypeError  = "error"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// ClientSetup is sent by the relay once after the connection opens. It is
// acknowledged silently and never changes session state.
type ClientSetup struct {
	Type       string `json:"type"`
	SessionID  string `json:"sessionId,omitempty"`
	CallSID    string `json:"callSid,omitempty"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	Direction  string `json:"direction,omitempty"`
	CustomData string `json:"customParameters,omitempty"`
}

// ClientPrompt carries one recognized user utterance and triggers one
// conversation turn.
type ClientPrompt struct {
	Type        string `json:"type"`
	VoicePrompt string `json:"voicePrompt"`
	Lang        string `json:"lang,omitempty"`
	Last        bool   `json:"last,omitempty"`
}

// ServerText is one speakable sentence fragment of the assistant reply.
// Last marks the end of the turn's output.
type ServerText struct {
	Type  string `json:"type"`
	Token string `json:"token"`
	Last  bool   `json:"last"`
}

// ServerError reports a failed turn. The connection stays open.
type ServerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// DecodeClientMessage parses one inbound text frame. Unknown types and
// missing fields are reported as *DecodeError; the caller decides whether to
// drop the frame or the connection.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case TypeSetup:
		var msg ClientSetup
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid setup frame", "")
		}
		return msg, nil
	case TypePrompt:
		var msg ClientPrompt
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid prompt frame", "")
		}
		if strings.TrimSpace(msg.VoicePrompt) == "" {
			return nil, badRequest("prompt.voicePrompt is required", "voicePrompt")
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}
