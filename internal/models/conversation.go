package models

import (
	"time"
)

const (
	ConversationTypeDM    = "DM"
	ConversationTypeGroup = "GROUP"
)

const (
	ParticipantRoleUser  = "USER"
	ParticipantRoleAdmin = "ADMIN"
)

type Conversation struct {
	ID            int       `json:"id" db:"id"`
	Type          string    `json:"type" db:"type"`
	CreatedBy     int       `json:"created_by" db:"created_by"`
	LastMessageID *int      `json:"last_message_id,omitempty" db:"last_message_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type ConversationParticipant struct {
	ConversationID int       `json:"conversation_id" db:"conversation_id"`
	UserID         int       `json:"user_id" db:"user_id"`
	Role           string    `json:"role" db:"role"`
	JoinedAt       time.Time `json:"joined_at" db:"joined_at"`
}

// LastMessagePreview is the denormalized tail of a conversation shown in
// list views. Every conversation has one from creation on (the greeting).
type LastMessagePreview struct {
	ID       int       `json:"id"`
	Content  string    `json:"content"`
	Type     string    `json:"type"`
	SenderID int       `json:"senderId"`
	SentAt   time.Time `json:"sentAt"`
}

// ConversationListItem is the read model for the conversation list: one row
// per DM the user participates in, assembled by a named query rather than
// nested row objects.
type ConversationListItem struct {
	ConversationID     int                 `json:"conversationId"`
	OtherParticipantID int                 `json:"participantId"`
	Type               string              `json:"type"`
	LastMessage        *LastMessagePreview `json:"lastMessage"`
	UnreadCount        int                 `json:"unreadCount"`
}

// ConversationSummary is what StartConversation returns to the caller.
type ConversationSummary struct {
	ConversationID int                 `json:"conversationId"`
	ParticipantID  int                 `json:"participantId"`
	Type           string              `json:"type"`
	LastMessage    *LastMessagePreview `json:"lastMessage"`
}
