// Package api exposes the agent and training-item operations over HTTP and
// over MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atendai/atenda/internal/agents"
	"github.com/atendai/atenda/internal/storage"
	"github.com/atendai/atenda/internal/training"
)

const maxRequestBodySize = 10 << 20 // 10MB, fits a base64 document upload

type ownerKey struct{}

// Deps carries the services the HTTP surface depends on.
type Deps struct {
	Agents   *agents.Manager
	Training *training.Service
	Token    string
}

// NewHandler builds the HTTP router. All routes except /health require a
// bearer token and an X-User-ID header identifying the owner on whose behalf
// the gateway is calling.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Use(RequireOwner)

		r.Post("/agents", handleCreateAgent(deps))
		r.Get("/agents", handleListAgents(deps))
		r.Get("/agents/{agentID}", handleGetAgent(deps))
		r.Patch("/agents/{agentID}/profile", handleUpdateProfile(deps))
		r.Patch("/agents/{agentID}/settings", handleUpdateSettings(deps))
		r.Delete("/agents/{agentID}", handleDeleteAgent(deps))

		r.Post("/agents/{agentID}/training-items", handleCreateItem(deps))
		r.Get("/agents/{agentID}/training-items", handleListItems(deps))
		r.Post("/agents/{agentID}/training-items/{itemID}/reprocess", handleReprocessItem(deps))
		r.Delete("/training-items/{itemID}", handleDeleteItem(deps))

		r.Post("/agents/{agentID}/compile", handleCompile(deps))
	})

	return r
}

// RequireOwner pulls the owner identity set by the upstream gateway out of
// the X-User-ID header and stores it on the request context.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get("X-User-ID")
		if owner == "" {
			httpError(w, http.StatusUnauthorized, "authentication_error", "missing X-User-ID header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, owner)))
	})
}

func ownerID(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey{}).(string)
	return owner
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

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeDomainError maps service errors onto HTTP status codes. Ownership
// misses surface as 404, never 403.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, training.ErrInvalidInput), errors.Is(err, agents.ErrInvalidInput):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func urlParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}
