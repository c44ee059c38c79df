package models

import (
	"time"
)

const MessageTypeText = "TEXT"

// DefaultGreeting seeds every new conversation so the list preview is
// never empty.
const DefaultGreeting = "Hello"

type Message struct {
	ID             int       `json:"id" db:"id"`
	ConversationID int       `json:"conversationId" db:"conversation_id"`
	SenderID       int       `json:"senderId" db:"sender_id"`
	Content        string    `json:"content" db:"content"`
	Type           string    `json:"type" db:"type"`
	Edited         bool      `json:"edited" db:"edited"`
	IsDeleted      bool      `json:"isDeleted" db:"is_deleted"`
	SentAt         time.Time `json:"sentAt" db:"sent_at"`
}

// MessageRef is the minimal projection used to validate mark-read input:
// which conversation does each message belong to.
type MessageRef struct {
	ID             int `db:"id"`
	ConversationID int `db:"conversation_id"`
}

// MessageView is a message as rendered for one viewer: deleted content
// blanked, unread computed against the viewer's receipts.
type MessageView struct {
	ID             int       `json:"id"`
	ConversationID int       `json:"conversationId"`
	SenderID       int       `json:"senderId"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	Edited         bool      `json:"edited"`
	IsDeleted      bool      `json:"isDeleted"`
	Unread         bool      `json:"unRead"`
	SentAt         time.Time `json:"sentAt"`
}

type MessageRead struct {
	ID             int       `json:"id" db:"id"`
	ConversationID int       `json:"conversation_id" db:"conversation_id"`
	MessageID      int       `json:"message_id" db:"message_id"`
	UserID         int       `json:"user_id" db:"user_id"`
	Read           bool      `json:"read" db:"read"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
