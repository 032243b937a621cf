// Package api exposes the conversation engine and lead store over HTTP and MCP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/intakehq/intake/internal/conversation"
	"github.com/intakehq/intake/internal/session"
	"github.com/intakehq/intake/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

type MessageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type AppDeps struct {
	Engine      *conversation.Engine
	Leads       *storage.Store
	CORSOrigins []string
	Metrics     http.Handler // optional; if nil, /metrics is not mounted
}

// NewAppHandler builds the full HTTP router.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
		}))
	}

	r.Get("/", handleRoot)
	r.Get("/health", handleHealth)
	r.Post("/api/chat/start", handleChatStart(deps))
	r.Post("/api/chat/message", handleChatMessage(deps))
	r.Get("/api/leads", handleListLeads(deps))
	r.Get("/api/leads/{id}", handleGetLead(deps))
	r.Get("/api/sessions/{id}", handleGetSession(deps))
	r.Delete("/api/sessions/{id}", handleDeleteSession(deps))

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	return r
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Lead Collection Chatbot API",
		"status":  "running",
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleChatStart(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply, err := deps.Engine.Start(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to start conversation: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"session_id": reply.SessionID,
			"message":    reply.AgentMessage,
		})
	}
}

func handleChatMessage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req MessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.SessionID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "session_id is required")
			return
		}

		reply, err := deps.Engine.Process(r.Context(), req.SessionID, req.Message)
		if errors.Is(err, session.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if errors.Is(err, conversation.ErrAlreadyComplete) {
			httpError(w, http.StatusConflict, "conversation_complete", "conversation already complete")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to process message: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reply)
	}
}

func handleListLeads(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 0, 0)
		offset := parseIntParam(r, "offset", 0, 0)

		leads, err := deps.Leads.ListLeads(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list leads: %v", err)
			return
		}

		if leads == nil {
			leads = []storage.Lead{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(leads)
	}
}

func handleGetLead(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		lead, err := deps.Leads.GetLead(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "lead not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get lead: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(lead)
	}
}

func handleGetSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		sess, err := deps.Engine.Status(r.Context(), id)
		if errors.Is(err, session.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get session: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sess)
	}
}

func handleDeleteSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		existed, err := deps.Engine.Delete(r.Context(), id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete session: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "deleted",
			"existed": existed,
		})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
