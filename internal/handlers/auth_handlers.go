package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	api_models "lumen-backend/internal/models"
	"lumen-backend/internal/services"
	"lumen-backend/pkg/httputil"

	"github.com/rs/zerolog/log"
)

// AuthService defines the interface expected from the auth service.
type AuthService interface {
	Login(ctx context.Context, username, password string) (*services.LoginResult, error)
}

type AuthHandler struct {
	authService AuthService
}

func NewAuthHandler(authSvc AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authSvc,
	}
}

// HandleLogin handles the POST /login request. Unknown usernames are registered.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req api_models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	res, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, services.ErrUnauthorized) {
			log.Warn().Err(err).Str("username", req.Username).Msg("login failed")
		}
		RespondServiceError(w, r, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, api_models.LoginResponse{
		Reply: res.Reply(),
		Token: res.Token,
	})
}

// HandleValidateSession handles POST /validate-session. The session gate has
// already checked the token when this runs.
func (h *AuthHandler) HandleValidateSession(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, api_models.OKResponse{OK: true})
}
