package handlers

import (
	"errors"
	"net/http"

	"lumen-backend/internal/auth"
	"lumen-backend/internal/services"
	"lumen-backend/internal/store"
	"lumen-backend/pkg/httputil"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// RespondServiceError maps service and store errors to HTTP statuses.
func RespondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, "Invalid username or password")
	case errors.Is(err, services.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, "Invalid session")
	case errors.Is(err, services.ErrConversationNotFound):
		httputil.RespondError(w, http.StatusNotFound, "Conversation not found")
	case errors.Is(err, store.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, store.ErrVersionConflict):
		httputil.RespondError(w, http.StatusConflict, "Conversation was modified concurrently, please retry")
	case errors.Is(err, services.ErrUpstream):
		httputil.RespondError(w, http.StatusBadGateway, "The assistant is unavailable right now")
	default:
		log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("unhandled error")
		httputil.RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// usernameFrom returns the username validated by the session gate. A missing value
// is a routing mistake and answered with 500.
func usernameFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		log.Error().Str("path", r.URL.Path).Msg("handler reached without session gate")
		httputil.RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
	return username, ok
}
