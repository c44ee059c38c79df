package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"courier/server/internal/appMiddleware"
	"courier/server/internal/apperrors"
	"courier/server/internal/pool"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsFrame struct {
	RequestType string          `json:"requestType"`
	Data        json.RawMessage `json:"data"`
}

type wsSendMessage struct {
	To             int    `json:"to"`
	ConversationID int    `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Message        string `json:"message"`
}

type wsMarkRead struct {
	MessageIDs []int `json:"messageIds"`
}

// WebSocket upgrades the connection and runs the read loop for one user.
// The token travels in the query string because browsers cannot set
// headers on websocket handshakes.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}

	userID, name, err := appMiddleware.ParseToken(tokenStr, h.jwtSecret)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading to WebSocket: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("User %d (%s) connected to WebSocket", userID, name)

	client := h.registry.Register(userID, conn)
	defer h.registry.Unregister(userID, client.ConnID)

	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			log.Printf("Error reading frame from user %d: %v", userID, err)
			break
		}

		switch frame.RequestType {
		case "send_message":
			h.handleSendMessage(r, client, frame.Data)
		case "mark_read":
			h.handleMarkRead(r, userID, frame.Data)
		default:
			log.Printf("User %d sent unknown request type %q", userID, frame.RequestType)
		}
	}
}

// handleSendMessage persists the message and confirms it back to the
// sender. A frame addressed with `to` targets a friend directly and the
// conversation is created on first contact; a frame addressed with
// `conversationId` appends to an existing one. Fan-out to the other
// participant happens inside SendMessage once the write is durable.
// All frames back to the sender go through client.Send, which serializes
// them against deliveries arriving on the same connection.
func (h *Handlers) handleSendMessage(r *http.Request, client *pool.Client, data json.RawMessage) {
	userID := client.UserID

	var payload wsSendMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		sendFailure(client, "", "Invalid request body")
		return
	}

	if payload.Message == "" || payload.MessageID == "" || (payload.To == 0 && payload.ConversationID == 0) {
		sendFailure(client, payload.MessageID, "missing required fields conversationId, messageId, to")
		return
	}

	conversationID := payload.ConversationID
	successType := "send_message_confirmation"

	if payload.To != 0 {
		areFriends, err := h.friends.AreFriends(r.Context(), userID, payload.To)
		if err != nil {
			log.Printf("Error checking friendship between %d and %d: %v", userID, payload.To, err)
			sendFailure(client, payload.MessageID, "Something went wrong")
			return
		}
		if !areFriends {
			sendFailure(client, payload.MessageID, "Destination should be a friend before sending messages")
			return
		}

		ensuredID, created, err := h.messenger.EnsureDM(r.Context(), userID, payload.To)
		if err != nil {
			log.Printf("Error resolving conversation for users %d and %d: %v", userID, payload.To, err)
			sendFailure(client, payload.MessageID, "Something went wrong")
			return
		}
		conversationID = ensuredID
		if created {
			successType = "conversation_creation_confirmation"
		}
	}

	message, err := h.messenger.SendMessage(r.Context(), userID, conversationID, payload.Message)
	if err != nil {
		log.Printf("Error sending message from user %d to conversation %d: %v", userID, conversationID, err)
		reason := "Something went wrong"
		if apperrors.IsClientError(err) {
			reason = err.Error()
		}
		sendFailure(client, payload.MessageID, reason)
		return
	}

	writeEvent(client, successType, map[string]interface{}{
		"conversationId": conversationID,
		"messageId":      payload.MessageID,
		"id":             message.ID,
		"sentAt":         message.SentAt,
	})
}

func (h *Handlers) handleMarkRead(r *http.Request, userID int, data json.RawMessage) {
	var payload wsMarkRead
	if err := json.Unmarshal(data, &payload); err != nil || len(payload.MessageIDs) == 0 {
		log.Printf("Invalid mark_read frame from user %d: %v", userID, err)
		return
	}

	created, err := h.messenger.MarkRead(r.Context(), userID, payload.MessageIDs)
	if err != nil {
		log.Printf("Error marking messages as read for user %d: %v", userID, err)
		return
	}

	log.Printf("User %d created %d read receipts over WebSocket", userID, created)
}

func sendFailure(client *pool.Client, clientMessageID, reason string) {
	writeEvent(client, "send_message_failure", map[string]interface{}{
		"messageId": clientMessageID,
		"error":     reason,
	})
}

func writeEvent(client *pool.Client, requestType string, data map[string]interface{}) {
	if err := client.Send(requestType, data); err != nil {
		log.Printf("Error writing event %q to user %d: %v", requestType, client.UserID, err)
	}
}
