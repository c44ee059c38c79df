package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"courier/server/internal/apperrors"
	"courier/server/internal/pool"
	"courier/server/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
)

// Handlers binds the HTTP and websocket surface to the services. All
// collaborators are injected; there is no package-level state.
type Handlers struct {
	messenger *services.MessengerService
	users     *services.UserService
	friends   *services.FriendService
	registry  *pool.Registry
	jwtSecret []byte
	tokenTTL  time.Duration
	clock     clockwork.Clock
	validate  *validator.Validate
}

func New(
	messenger *services.MessengerService,
	users *services.UserService,
	friends *services.FriendService,
	registry *pool.Registry,
	jwtSecret []byte,
	tokenTTL time.Duration,
	clock clockwork.Clock,
) *Handlers {
	return &Handlers{
		messenger: messenger,
		users:     users,
		friends:   friends,
		registry:  registry,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		clock:     clock,
		validate:  validator.New(),
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}

// respondError maps the error taxonomy onto the wire: every client-fault
// class is a 400 with its message, everything else is a generic 500 with
// the detail kept in the log.
func respondError(w http.ResponseWriter, err error) {
	if apperrors.IsClientError(err) {
		respondMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Printf("Internal error: %v", err)
	respondMessage(w, http.StatusInternalServerError, "Something went wrong")
}

// decodeValid decodes the JSON body into dst and runs struct validation.
func (h *Handlers) decodeValid(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.InvalidInput("Invalid request body")
	}
	if err := h.validate.Struct(dst); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return err
		}
		return apperrors.InvalidInput("Missing required fields")
	}
	return nil
}
