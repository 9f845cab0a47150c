package session

import "github.com/loqalabs/aacharya/internal/protocol"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation. Messages are never edited or
// removed once appended.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// State is a point-in-time copy of the session.
type State struct {
	SessionID       string           `json:"session_id"`
	Language        string           `json:"language"`
	Placeholder     string           `json:"placeholder"`
	Messages        []Message        `json:"messages"`
	PendingInput    string           `json:"pending_input"`
	AwaitingReply   bool             `json:"awaiting_reply"`
	CapturingSpeech bool             `json:"capturing_speech"`
	Speaking        bool             `json:"speaking"`
	Alerts          []protocol.Alert `json:"alerts"`
}
