package services

import (
	"context"
	"log"
)

// Presence is the reachability capability owned by the connection layer;
// the core only asks "is this user online" and "push this event".
type Presence interface {
	IsReachable(userID int) bool
	Push(userID int, requestType string, data any)
}

// Delivery fans an event out to every participant of a conversation
// except the sender. It is fire-and-forget: unreachable recipients are
// skipped, nothing is retried, and no error ever reaches the caller.
// The message is already persisted and will surface on the next fetch.
type Delivery struct {
	directory ParticipantDirectory
	presence  Presence
}

func NewDelivery(directory ParticipantDirectory, presence Presence) *Delivery {
	return &Delivery{directory: directory, presence: presence}
}

func (d *Delivery) Notify(ctx context.Context, conversationID, senderID int, requestType string, data any) {
	participants, err := d.directory.ParticipantIDs(ctx, conversationID)
	if err != nil {
		log.Printf("Error resolving participants for conversation %d: %v", conversationID, err)
		return
	}

	for _, userID := range participants {
		if userID == senderID {
			continue
		}
		if !d.presence.IsReachable(userID) {
			continue
		}
		d.presence.Push(userID, requestType, data)
	}
}
