package auth

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authService "github.com/silvercoin/advisor/backend/internal/service/auth"
	"github.com/silvercoin/advisor/backend/pkg/utils"
)

// Authenticator exchanges a username and password for a bearer credential.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// Handler serves the token endpoint.
type Handler struct {
	authenticator Authenticator
}

// New creates a token handler.
func New(authenticator Authenticator) *Handler {
	return &Handler{authenticator: authenticator}
}

// RegisterRoutes mounts POST /token.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/token", h.handleToken)
}

// TokenResponse is the OAuth2 password-flow response body.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	username, password, err := readCredentials(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.authenticator.Login(r.Context(), username, password)
	if err != nil {
		var authErr *authService.Error
		if errors.As(err, &authErr) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			utils.RespondError(w, http.StatusUnauthorized, "incorrect username or password")
			return
		}
		utils.RespondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// readCredentials accepts form-encoded and JSON bodies.
func readCredentials(r *http.Request) (string, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var payload struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return "", "", errors.New("invalid request body")
		}
		return validate(payload.Username, payload.Password)
	}

	if err := r.ParseForm(); err != nil {
		return "", "", errors.New("invalid form body")
	}
	return validate(r.PostForm.Get("username"), r.PostForm.Get("password"))
}

func validate(username, password string) (string, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", "", errors.New("username and password are required")
	}
	return username, password, nil
}
