package handlers

import (
	"net/http"
	"strconv"

	"courier/server/internal/apperrors"
	"courier/server/internal/appMiddleware"
)

type startConversationRequest struct {
	FriendID int `json:"friendId" validate:"required"`
}

// StartConversation creates the DM with a friend. A conversation that
// already exists for the pair is a client error here, not a silent reuse.
func (h *Handlers) StartConversation(w http.ResponseWriter, r *http.Request) {
	currentUser, ok := appMiddleware.UserID(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req startConversationRequest
	if err := h.decodeValid(r, &req); err != nil {
		respondError(w, err)
		return
	}

	conversation, err := h.messenger.StartConversation(r.Context(), currentUser, req.FriendID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{"conversation": conversation},
	})
}

func (h *Handlers) GetAllConversations(w http.ResponseWriter, r *http.Request) {
	currentUser, ok := appMiddleware.UserID(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	list, err := h.messenger.ListConversations(r.Context(), currentUser)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, list)
}

func (h *Handlers) GetAllMessagesInConversation(w http.ResponseWriter, r *http.Request) {
	currentUser, ok := appMiddleware.UserID(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conversationID, err := strconv.Atoi(r.URL.Query().Get("conversationId"))
	if err != nil || conversationID <= 0 {
		respondError(w, apperrors.InvalidInput("Missing required fields"))
		return
	}

	messages, err := h.messenger.ListMessages(r.Context(), conversationID, currentUser)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type sendMessageRequest struct {
	ConversationID int    `json:"conversationId" validate:"required"`
	Message        string `json:"message" validate:"required"`
}

func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	currentUser, ok := appMiddleware.UserID(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req sendMessageRequest
	if err := h.decodeValid(r, &req); err != nil {
		respondError(w, err)
		return
	}

	message, err := h.messenger.SendMessage(r.Context(), currentUser, req.ConversationID, req.Message)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"data": message})
}

type markReadRequest struct {
	MessageIDs []int `json:"messageIds" validate:"required,min=1"`
}

func (h *Handlers) MarkMessageRead(w http.ResponseWriter, r *http.Request) {
	currentUser, ok := appMiddleware.UserID(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req markReadRequest
	if err := h.decodeValid(r, &req); err != nil {
		respondError(w, err)
		return
	}

	created, err := h.messenger.MarkRead(r.Context(), currentUser, req.MessageIDs)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Reads created successfully for messages",
		"created": created,
	})
}

func (h *Handlers) GetConversationUnreadCount(w http.ResponseWriter, r *http.Request) {
	currentUser, ok := appMiddleware.UserID(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conversationID, err := strconv.Atoi(r.URL.Query().Get("conversationId"))
	if err != nil || conversationID <= 0 {
		respondError(w, apperrors.InvalidInput("Missing required fields"))
		return
	}

	unreads, err := h.messenger.UnreadCount(r.Context(), conversationID, currentUser)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"unReads": unreads})
}
