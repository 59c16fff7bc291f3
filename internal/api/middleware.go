package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"lumen-backend/internal/auth"
	"lumen-backend/internal/handlers"
	api_models "lumen-backend/internal/models"
	"lumen-backend/pkg/httputil"

	"github.com/rs/zerolog/log"
)

// maxJSONBody caps JSON request bodies read by the gate.
const maxJSONBody = 1 << 20

// SessionValidator checks a username/token pair.
type SessionValidator interface {
	Validate(ctx context.Context, username, token string) (*api_models.User, error)
}

// SessionGate reads username and token from the JSON body or multipart form and
// rejects the request unless the token is the user's active one. On success the
// username is stored in the request context and the JSON body is restored for the
// handler. Multipart bodies are limited to maxUpload bytes.
func SessionGate(v SessionValidator, maxUpload int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, err := readCredentials(w, r, maxUpload)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					httputil.RespondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
					return
				}
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("session gate: unreadable body")
				httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
				return
			}

			user, err := v.Validate(r.Context(), creds.Username, creds.Token)
			if err != nil {
				handlers.RespondServiceError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUsername(r.Context(), user.Username)))
		})
	}
}

func readCredentials(w http.ResponseWriter, r *http.Request, maxUpload int64) (api_models.SessionRequest, error) {
	var creds api_models.SessionRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
		if err := r.ParseMultipartForm(maxUpload); err != nil {
			return creds, err
		}
		creds.Username = r.FormValue("username")
		creds.Token = r.FormValue("token")
		return creds, nil
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		return creds, err
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	if err := json.Unmarshal(body, &creds); err != nil {
		return creds, err
	}
	return creds, nil
}
