package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lumen-backend/internal/api"
	"lumen-backend/internal/config"
	"lumen-backend/internal/handlers"
	"lumen-backend/internal/llm"
	"lumen-backend/internal/logging"
	"lumen-backend/internal/persona"
	"lumen-backend/internal/services"

	"github.com/rs/zerolog/log"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.HTTPPort).
		Str("store", cfg.StoreDriver).
		Str("text_model", cfg.TextModel).
		Str("image_model", cfg.ImageModel).
		Str("openai_base", cfg.OpenAIBaseURL).
		Msg("configuration loaded")

	// 2. Initialize Store
	st, err := openStore(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer st.Close()
	log.Info().Str("driver", cfg.StoreDriver).Msg("store initialized")

	// 3. Persona and model provider
	p, err := persona.Load(cfg.PersonaFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.PersonaFile).Msg("failed to load persona")
	}

	registry := llm.NewCapabilityRegistry()
	if err := registry.LoadOverrides(cfg.ModelCapabilities); err != nil {
		log.Fatal().Err(err).Msg("invalid MODEL_CAPABILITIES")
	}
	caps := registry.Resolve(cfg.TextModel)

	client := llm.NewClient(llm.Config{
		APIKey:     cfg.OpenAIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		TextModel:  cfg.TextModel,
		ImageModel: cfg.ImageModel,
	})
	log.Info().
		Str("persona", p.Identity.Name).
		Str("model", cfg.TextModel).
		Str("image_model", cfg.ImageModel).
		Stringer("capabilities", caps).
		Msg("model provider configured")

	// --- Initialize Services ---
	locks := services.NewKeyedLock()
	authService := services.NewAuthService(st, locks)
	dispatcher := services.NewDispatcher(client, client, services.DispatcherConfig{
		SystemPrompt: p.SystemPrompt(),
		Capabilities: caps,
		UploadsDir:   cfg.UploadsDir,
	})
	conversationService := services.NewConversationService(st, dispatcher, locks)

	// 4. Setup Router & Inject Dependencies
	router := api.NewRouter(api.RouterDependencies{
		AuthHandler:         handlers.NewAuthHandler(authService),
		ConversationHandler: handlers.NewConversationHandlers(conversationService, cfg.UploadsDir),
		PageHandler:         handlers.NewPageHandler(cfg.StaticDir),
		Sessions:            authService,
		Store:               st,
		Config:              cfg,
	})

	// 5. Configure and Start HTTP Server
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		// Replies wait on the model provider.
		WriteTimeout: 190 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("port", cfg.HTTPPort).Msg("could not listen")
		}
		log.Info().Msg("server listener routine stopped")
	}()

	<-stopChan
	log.Info().Msg("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		return
	}
	log.Info().Msg("server shutdown complete")
}
