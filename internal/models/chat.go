package models

import "time"

// ChatMessage is a single message posted to a chat room.
type ChatMessage struct {
	ID       string    `json:"id"`
	Room     string    `json:"room"`
	SenderID string    `json:"senderId"`
	Sender   string    `json:"sender,omitempty"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sentAt"`
}

// ChatMessageID returns the identifier used to key messages in collections.
func ChatMessageID(m ChatMessage) string {
	return m.ID
}
