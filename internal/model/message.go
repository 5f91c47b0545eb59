package model

import "time"

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// MessageType tags a chat message for rendering. Plain is the default and
// omitted on the wire.
type MessageType string

const (
	MessageTypePlain       MessageType = "plain"
	MessageTypeChart       MessageType = "chart"
	MessageTypeSDGAnalysis MessageType = "sdg-analysis"
	MessageTypeError       MessageType = "error"
)

// ChatMessage is one entry in a session transcript. Assistant messages grow
// via streamed deltas; the ID is required whenever a message must be mutated
// in place afterwards (streaming updates, chart confirmation).
type ChatMessage struct {
	ID        string      `json:"id,omitempty"`
	Sender    Sender      `json:"sender"`
	Text      string      `json:"text"`
	Time      string      `json:"time"`
	Type      MessageType `json:"type,omitempty"`
	Confirmed bool        `json:"confirmed,omitempty"` // chart messages only
}

// Role maps the message sender to the completion API role.
func (m *ChatMessage) Role() string {
	if m.Sender == SenderUser {
		return "user"
	}
	return "assistant"
}

// MessageTime formats a message creation time the way the UI displays it.
// Set once at creation, never updated by streaming.
func MessageTime(t time.Time) string {
	return t.Format("15:04")
}
