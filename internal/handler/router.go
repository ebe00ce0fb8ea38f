package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kaiwenz/ai-chatbot/backend/internal/coordinator"
	"github.com/kaiwenz/ai-chatbot/backend/internal/generator"
	chathandler "github.com/kaiwenz/ai-chatbot/backend/internal/handler/chat"
	wshandler "github.com/kaiwenz/ai-chatbot/backend/internal/handler/ws"
	"github.com/kaiwenz/ai-chatbot/backend/internal/history"
	middlewarePkg "github.com/kaiwenz/ai-chatbot/backend/internal/middleware"
	"github.com/kaiwenz/ai-chatbot/backend/internal/session"
	"github.com/kaiwenz/ai-chatbot/backend/pkg/utils"
)

const version = "1.0.0"

// NewRouter wires HTTP routes to the conversation engine.
func NewRouter(coord *coordinator.Coordinator, sessions *session.Store, hist history.Store, gen generator.Generator, contextBudget int) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		// Generator construction happens before the router exists, so a
		// serving process always has its model.
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":       "online",
			"message":      "AI Chatbot API is running",
			"version":      version,
			"model":        gen.ModelName(),
			"model_loaded": true,
		})
	})

	chatHandler := chathandler.New(coord, sessions, hist, gen, contextBudget)
	r.Route("/api", chatHandler.RegisterRoutes)

	wsHandler := wshandler.New(coord)
	wsHandler.RegisterRoutes(r)

	return r
}
