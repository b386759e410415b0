package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/agent"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/model"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/service"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/store"
)

// ExecutionHandler exposes the execution lifecycle over HTTP.
type ExecutionHandler struct {
	executor *service.Executor
	agents   *agent.Registry
}

func NewExecutionHandler(executor *service.Executor, agents *agent.Registry) *ExecutionHandler {
	return &ExecutionHandler{executor: executor, agents: agents}
}

// GET /v1/agents
func (h *ExecutionHandler) ListAgents(w http.ResponseWriter, _ *http.Request) {
	type agentView struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Enabled bool   `json:"enabled"`
	}
	var out []agentView
	for _, a := range h.agents.List() {
		out = append(out, agentView{ID: a.ID(), Name: a.Name(), Enabled: a.Enabled()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": out})
}

// POST /v1/agents/{agent_id}/executions
func (h *ExecutionHandler) Start(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent_id")
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", "X-User-Id header is required")
		return
	}

	var body struct {
		Params    map[string]any `json:"params"`
		SessionID string         `json:"session_id"`
	}
	if err := decodeBody(r, &body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", "malformed request body")
		return
	}

	info, err := h.executor.StartExecution(r.Context(), agentID, body.Params, uid, body.SessionID)
	if err != nil {
		var notFound *model.AgentNotFoundError
		var disabled *model.AgentDisabledError
		switch {
		case errors.As(err, &notFound):
			writeError(w, http.StatusNotFound, "E_AGENT_NOT_FOUND", err.Error())
		case errors.As(err, &disabled):
			writeError(w, http.StatusForbidden, "E_AGENT_DISABLED", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "E_INTERNAL", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, info)
}

// GET /v1/executions/{execution_id}
func (h *ExecutionHandler) Status(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "execution_id")

	view, err := h.executor.GetStatus(r.Context(), executionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "E_NOT_FOUND", "execution not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "E_INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// DELETE /v1/executions/{execution_id}
// Cancelling an already-terminal execution is an idempotent no-op.
func (h *ExecutionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "execution_id")

	if h.executor.Cancel(executionID) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if _, err := h.executor.GetStatus(r.Context(), executionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "E_NOT_FOUND", "execution not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "E_INTERNAL", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
