package models

import (
	"time"
)

const (
	RequestStatusPending   = "PENDING"
	RequestStatusAccepted  = "ACCEPTED"
	RequestStatusRejected  = "REJECTED"
	RequestStatusCancelled = "CANCELLED"
)

type FriendRequest struct {
	ID          int       `json:"id" db:"id"`
	RequesterID int       `json:"requesterId" db:"requester_id"`
	RecipientID int       `json:"recipientId" db:"recipient_id"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// FriendRequestView joins the counterpart's profile onto a request for
// the incoming/outgoing list endpoints.
type FriendRequestView struct {
	RequestID int    `json:"requestId"`
	UserID    int    `json:"userId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Status    string `json:"status"`
}
