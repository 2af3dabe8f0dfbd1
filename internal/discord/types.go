// Package discord provides the Discord surface: a gateway client for
// receiving messages, a REST client for sending and editing them, and
// the bridge that routes inbound messages through the agent loop.
package discord

// User is a Discord user.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

// MessageReference points at the message a reply targets.
type MessageReference struct {
	MessageID string `json:"message_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

// Message is a Discord channel message.
type Message struct {
	ID               string            `json:"id"`
	ChannelID        string            `json:"channel_id"`
	Content          string            `json:"content"`
	Author           User              `json:"author"`
	Mentions         []User            `json:"mentions"`
	MessageReference *MessageReference `json:"message_reference,omitempty"`
}

// MentionsUser reports whether the message mentions the given user ID.
func (m *Message) MentionsUser(userID string) bool {
	for _, u := range m.Mentions {
		if u.ID == userID {
			return true
		}
	}
	return false
}
