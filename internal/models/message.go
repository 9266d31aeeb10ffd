package models

import "time"

// Role tells who wrote a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation, typed by the officer or produced by the assistant.
type Message struct {
	ID        string          `json:"id"`
	Role      Role            `json:"role"`
	Text      string          `json:"text"`
	CreatedAt time.Time       `json:"created_at"`
	Result    *LocationResult `json:"result,omitempty"`
	MapLinks  []string        `json:"map_links,omitempty"`
}

// Clone returns a deep copy so callers never share the result or link slice.
func (m Message) Clone() Message {
	out := m
	if m.Result != nil {
		r := m.Result.Clone()
		out.Result = &r
	}
	if m.MapLinks != nil {
		out.MapLinks = append([]string(nil), m.MapLinks...)
	}
	return out
}
