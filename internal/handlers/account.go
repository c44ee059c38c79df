package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"courier/server/internal/apperrors"
	"courier/server/internal/appMiddleware"

	"github.com/golang-jwt/jwt/v4"
)

type createAccountRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := h.decodeValid(r, &req); err != nil {
		respondError(w, err)
		return
	}

	userID, err := h.users.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			respondMessage(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"message": "User created",
		"user_id": strconv.Itoa(userID),
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decodeValid(r, &req); err != nil {
		respondError(w, err)
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			respondMessage(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		respondError(w, err)
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"name":    user.Name,
		"exp":     h.clock.Now().Add(h.tokenTTL).Unix(),
	})

	tokenString, err := token.SignedString(h.jwtSecret)
	if err != nil {
		log.Printf("Error creating token for user %d: %v", user.ID, err)
		respondMessage(w, http.StatusInternalServerError, "Token creation error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"token": tokenString})
}

// AuthenticateUser echoes the authenticated user's profile; the frontend
// calls it on load to validate a stored token.
func (h *Handlers) AuthenticateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserID(r.Context())
	if !ok {
		respondMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// Logout acknowledges the client discarding its token; sessions are
// stateless on the server.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	respondMessage(w, http.StatusOK, "Logged out")
}
