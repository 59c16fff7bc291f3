package httputil

import (
	"encoding/json"
	"net/http"

	api_models "lumen-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// RespondJSON writes a JSON response with the given status code and payload.
func RespondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Header is already written, nothing left to do but log.
		log.Error().Err(err).Msg("encoding JSON response")
	}
}

// RespondError writes a JSON error response with the given status code and message.
func RespondError(w http.ResponseWriter, statusCode int, message string) {
	RespondJSON(w, statusCode, api_models.ErrorResponse{Error: message})
}
