package chat

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kaiwenz/ai-chatbot/backend/internal/coordinator"
	"github.com/kaiwenz/ai-chatbot/backend/internal/generator"
	"github.com/kaiwenz/ai-chatbot/backend/internal/history"
	"github.com/kaiwenz/ai-chatbot/backend/internal/model/chat"
	"github.com/kaiwenz/ai-chatbot/backend/internal/session"
	"github.com/kaiwenz/ai-chatbot/backend/pkg/utils"
)

// Handler serves the one-shot chat API.
type Handler struct {
	coord    *coordinator.Coordinator
	sessions *session.Store
	history  history.Store
	gen      generator.Generator
	budget   int
}

// New creates the chat handler. budget is the context window's token
// budget, surfaced through the info endpoint.
func New(coord *coordinator.Coordinator, sessions *session.Store, hist history.Store, gen generator.Generator, budget int) *Handler {
	if budget <= 0 {
		budget = chat.DefaultTokenBudget
	}
	return &Handler{
		coord:    coord,
		sessions: sessions,
		history:  hist,
		gen:      gen,
		budget:   budget,
	}
}

// RegisterRoutes mounts the chat endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/history/{sessionID}", h.handleHistory)
	r.Post("/reset/{sessionID}", h.handleReset)
	r.Get("/info", h.handleInfo)
}

type chatRequest struct {
	Message     string   `json:"message"`
	Temperature *float64 `json:"temperature"`
	MaxLength   *int     `json:"max_length"`
	TopK        *int     `json:"top_k"`
	TopP        *float64 `json:"top_p"`
	SessionID   string   `json:"session_id"`
}

type chatResponse struct {
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
}

// params merges the request's explicit values over the defaults. Omitted
// fields take the default; explicit out-of-range values are rejected later
// by the coordinator, never clamped.
func (req chatRequest) params() generator.Params {
	params := generator.DefaultParams()
	if req.Temperature != nil {
		params.Temperature = *req.Temperature
	}
	if req.MaxLength != nil {
		params.MaxLength = *req.MaxLength
	}
	if req.TopK != nil {
		params.TopK = *req.TopK
	}
	if req.TopP != nil {
		params.TopP = *req.TopP
	}
	return params
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID := session.Resolve(req.SessionID)

	turn, err := h.coord.Submit(r.Context(), sessionID, req.Message, req.params())
	if err != nil {
		respondCoordinatorError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, chatResponse{
		Response:  turn.Content,
		Timestamp: turn.CreatedAt.Format(time.RFC3339),
		SessionID: turn.SessionID,
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	limit := history.DefaultReadLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	turns, err := h.history.Read(r.Context(), sessionID, limit)
	if err != nil {
		log.Printf("[chat] history read failed session=%s: %v", sessionID, err)
		utils.RespondErrorKind(w, http.StatusInternalServerError, string(coordinator.KindPersistenceFailed), "failed to read history")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   history.PairExchanges(turns),
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	h.sessions.Reset(sessionID)

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "conversation context has been reset",
	})
}

func (h *Handler) handleInfo(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"model_name":         h.gen.ModelName(),
		"max_context_tokens": h.budget,
		"defaults":           generator.DefaultParams(),
	})
}

func respondCoordinatorError(w http.ResponseWriter, err error) {
	var cerr *coordinator.Error
	if errors.As(err, &cerr) {
		utils.RespondErrorKind(w, cerr.HTTPStatus(), string(cerr.Kind), cerr.Reason)
		return
	}
	log.Printf("[chat] unexpected error: %v", err)
	utils.RespondError(w, http.StatusInternalServerError, "internal error")
}
