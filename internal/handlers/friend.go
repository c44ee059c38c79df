package handlers

import (
	"context"
	"net/http"

	"courier/server/internal/appMiddleware"
	"courier/server/internal/apperrors"
)

type friendRequestPayload struct {
	RecipientID int `json:"recipientId" validate:"required"`
}

func (h *Handlers) SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	currentUser, ok := appMiddleware.UserID(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req friendRequestPayload
	if err := h.decodeValid(r, &req); err != nil {
		respondError(w, err)
		return
	}

	requestID, err := h.friends.SendRequest(r.Context(), currentUser, req.RecipientID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"message":   "Friend request sent",
		"requestId": requestID,
	})
}

type resolveRequestPayload struct {
	RequestID int `json:"requestId" validate:"required"`
}

func (h *Handlers) AcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveFriendRequest(w, r, h.friends.Accept, "Friend request accepted")
}

func (h *Handlers) RejectFriendRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveFriendRequest(w, r, h.friends.Reject, "Friend request rejected")
}

func (h *Handlers) CancelFriendRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveFriendRequest(w, r, h.friends.Cancel, "Friend request cancelled")
}

func (h *Handlers) resolveFriendRequest(
	w http.ResponseWriter,
	r *http.Request,
	action func(ctx context.Context, currentUser, requestID int) error,
	successMessage string,
) {
	currentUser, ok := appMiddleware.UserID(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req resolveRequestPayload
	if err := h.decodeValid(r, &req); err != nil {
		respondError(w, err)
		return
	}

	if err := action(r.Context(), currentUser, req.RequestID); err != nil {
		respondError(w, err)
		return
	}

	respondMessage(w, http.StatusOK, successMessage)
}

// GetMyRequests lists pending requests addressed to the current user.
func (h *Handlers) GetMyRequests(w http.ResponseWriter, r *http.Request) {
	currentUser, ok := appMiddleware.UserID(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	requests, err := h.friends.ListIncoming(r.Context(), currentUser)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

// GetRequestedList lists pending requests the current user has sent.
func (h *Handlers) GetRequestedList(w http.ResponseWriter, r *http.Request) {
	currentUser, ok := appMiddleware.UserID(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	requests, err := h.friends.ListOutgoing(r.Context(), currentUser)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

// FindUsers searches users by email for sending friend requests.
func (h *Handlers) FindUsers(w http.ResponseWriter, r *http.Request) {
	currentUser, ok := appMiddleware.UserID(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	term := r.URL.Query().Get("email")
	if term == "" {
		respondError(w, apperrors.InvalidInput("Missing required fields"))
		return
	}

	users, err := h.users.SearchByEmail(r.Context(), term, currentUser)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"users": users})
}

// FindFriends lists the current user's accepted friends.
func (h *Handlers) FindFriends(w http.ResponseWriter, r *http.Request) {
	currentUser, ok := appMiddleware.UserID(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	friends, err := h.friends.ListFriends(r.Context(), currentUser)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"friends": friends})
}
