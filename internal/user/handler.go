package user

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"favourites-api/internal/auth"
	"favourites-api/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

const loginFailedMessage = "Incorrect user name or password"

type Handler struct {
	service *Service
	logger  *observability.Logger
}

func NewHandler(service *Service, logger *observability.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	// profile fields beyond the credentials are accepted and ignored
	var body Credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusUnprocessableEntity, "invalid json body")
		return
	}

	u, err := h.service.Register(r.Context(), body)
	if err != nil {
		var validationErr ValidationError
		switch {
		case errors.As(err, &validationErr):
			writeMessage(w, http.StatusUnprocessableEntity, validationErr.Message)
		case errors.Is(err, ErrUserNameTaken):
			writeMessage(w, http.StatusUnprocessableEntity, "User Name already taken")
		default:
			h.reportStoreError(r, "register_failed", err)
			writeMessage(w, http.StatusUnprocessableEntity, "unable to register user")
		}
		return
	}

	h.logger.Info("user_registered", map[string]any{
		"user_id":        u.ID,
		"correlation_id": observability.CorrelationID(r.Context()),
	})
	writeMessage(w, http.StatusOK, fmt.Sprintf("User %s successfully registered", u.UserName))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body Credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusUnprocessableEntity, "invalid json body")
		return
	}

	token, err := h.service.Login(r.Context(), body)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeMessage(w, http.StatusUnprocessableEntity, loginFailedMessage)
			return
		}
		h.reportStoreError(r, "login_failed", err)
		writeMessage(w, http.StatusUnprocessableEntity, "unable to login")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "login successful",
		"token":   token,
	})
}

func (h *Handler) ListFavourites(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	favourites, err := h.service.Favourites(r.Context(), identity.ID)
	if err != nil {
		h.writeFavouritesError(w, r, "list_favourites_failed", "unable to load favourites", err)
		return
	}

	writeJSON(w, http.StatusOK, favourites)
}

func (h *Handler) AddFavourite(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	favourites, err := h.service.AddFavourite(r.Context(), identity.ID, r.PathValue("id"))
	if err != nil {
		h.writeFavouritesError(w, r, "add_favourite_failed", "unable to add favourite", err)
		return
	}

	writeJSON(w, http.StatusOK, favourites)
}

func (h *Handler) RemoveFavourite(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	favourites, err := h.service.RemoveFavourite(r.Context(), identity.ID, r.PathValue("id"))
	if err != nil {
		h.writeFavouritesError(w, r, "remove_favourite_failed", "unable to remove favourite", err)
		return
	}

	writeJSON(w, http.StatusOK, favourites)
}

func (h *Handler) writeFavouritesError(w http.ResponseWriter, r *http.Request, event, opaque string, err error) {
	var validationErr ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusUnprocessableEntity, validationErr.Message)
	case errors.Is(err, ErrUserNotFound):
		writeError(w, http.StatusUnprocessableEntity, "user not found")
	case errors.Is(err, ErrFavouritesLimit):
		writeError(w, http.StatusUnprocessableEntity, "favourites limit reached")
	default:
		h.reportStoreError(r, event, err)
		writeError(w, http.StatusUnprocessableEntity, opaque)
	}
}

// reportStoreError logs and captures err. The raw text never reaches the client.
func (h *Handler) reportStoreError(r *http.Request, event string, err error) {
	h.logger.Error(event, map[string]any{
		"error":          err.Error(),
		"path":           r.URL.Path,
		"correlation_id": observability.CorrelationID(r.Context()),
	})
	observability.CaptureError(r.Context(), err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
