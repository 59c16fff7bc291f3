package api

import (
	"context"
	"net/http"
	"os"
	"time"

	"lumen-backend/internal/config"
	"lumen-backend/internal/handlers"
	"lumen-backend/internal/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers and configuration.
type RouterDependencies struct {
	AuthHandler         *handlers.AuthHandler
	ConversationHandler *handlers.ConversationHandlers
	PageHandler         *handlers.PageHandler
	Sessions            SessionValidator
	Store               Pinger // checked by /health
	Config              *config.Config
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter creates and configures the main Chi router for the application.
func NewRouter(deps RouterDependencies) *chi.Mux {
	r := chi.NewRouter()

	// --- Base Middleware Stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger)
	r.Use(middleware.Recoverer)
	// Image requests make two provider calls in a row.
	r.Use(middleware.Timeout(180 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.Config.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	}))

	// --- Public Routes ---
	r.Get("/health", healthHandler(deps.Store))

	if deps.AuthHandler == nil {
		panic("AuthHandler dependency is nil in router setup")
	}
	r.Post("/login", deps.AuthHandler.HandleLogin)

	if deps.PageHandler != nil {
		r.Get("/", deps.PageHandler.HandleIndex)
	}
	mountFiles(r, "/static", deps.Config.StaticDir)
	mountFiles(r, "/uploads", deps.Config.UploadsDir)

	// --- Session-gated Routes ---
	r.Group(func(r chi.Router) {
		r.Use(SessionGate(deps.Sessions, deps.Config.MaxUploadBytes))

		r.Post("/validate-session", deps.AuthHandler.HandleValidateSession)

		if deps.ConversationHandler == nil {
			log.Warn().Msg("ConversationHandler dependency is nil, skipping conversation routes")
			return
		}
		h := deps.ConversationHandler
		r.Post("/conversations", h.HandleListConversations)
		r.Post("/conversation", h.HandleGetConversation)
		r.Post("/new-conversation", h.HandleCreateConversation)
		r.Post("/rename-conversation", h.HandleRenameConversation)
		r.Post("/chat", h.HandleChat)
		r.Post("/image", h.HandleImage)
	})

	return r
}

// healthHandler answers "OK" while the store responds to a ping.
func healthHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				log.Error().Err(err).Msg("health check: store unreachable")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("store unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

// mountFiles serves dir under prefix. Directory listings are not exposed.
func mountFiles(r chi.Router, prefix, dir string) {
	if dir == "" {
		return
	}
	fs := http.StripPrefix(prefix, http.FileServer(noListing{http.Dir(dir)}))
	r.Get(prefix+"/*", fs.ServeHTTP)
}

type noListing struct {
	fs http.FileSystem
}

func (n noListing) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if stat.IsDir() {
		f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}
