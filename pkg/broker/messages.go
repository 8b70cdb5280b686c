package broker

import (
	"github.com/termgate/termgate/pkg/assist"
	"github.com/termgate/termgate/pkg/models"
)

// Stream message types. The type tag is the discriminant of every frame;
// unknown tags are rejected with a protocol error.
const (
	// Inbound
	TypeSSHConnect     = "ssh:connect"
	TypeSSHDisconnect  = "ssh:disconnect"
	TypeTerminalInput  = "terminal:input"
	TypeTerminalResize = "terminal:resize"
	TypeTerminalClear  = "terminal:clear"
	TypeAITranslate    = "ai:translate"
	TypeAIExplain      = "ai:explain"
	TypeAIQuery        = "ai:query"
	TypeSessionList    = "session:list"

	// Outbound
	TypeTerminalOutput = "terminal:output"
	TypeSSHStatus      = "ssh:status"
	TypeAIResponse     = "ai:response"
	TypeError          = "error"
)

// inboundMessage is the union of every client frame. Fields unknown to a
// given type are ignored.
type inboundMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	ProfileID string `json:"profileId,omitempty"`
	Data      string `json:"data,omitempty"`
	Cols      int    `json:"cols,omitempty"`
	Rows      int    `json:"rows,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
	Title     string `json:"title,omitempty"`
}

// outboundMessage is the union of every server frame. For terminal:output the
// data field carries the remote bytes base64-encoded.
type outboundMessage struct {
	Type      string                    `json:"type"`
	SessionID string                    `json:"sessionId,omitempty"`
	Data      string                    `json:"data,omitempty"`
	Status    models.ConnectionStatus   `json:"status,omitempty"`
	Error     string                    `json:"error,omitempty"`
	Result    *assist.Result            `json:"result,omitempty"`
	Sessions  []*models.TerminalSession `json:"sessions,omitempty"`
}
