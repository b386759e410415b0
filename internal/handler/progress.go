package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/progress"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/stream"
)

const keepaliveInterval = 15 * time.Second

// ProgressHandler serves the SSE progress stream and the connection control
// endpoints (heartbeat, subscription update).
type ProgressHandler struct {
	connections *stream.Registry
}

func NewProgressHandler(connections *stream.Registry) *ProgressHandler {
	return &ProgressHandler{connections: connections}
}

// GET /v1/progress/stream?level=user_friendly&execution_id=...
// SSE stream of progress events for the caller's executions. The first event
// carries the connection id; the client uses it against the control
// endpoints. Writing the keepalive doubles as a heartbeat: a reader that
// still accepts writes is alive.
func (h *ProgressHandler) Stream(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", "X-User-Id header is required")
		return
	}

	level := progress.ParseDetailLevel(r.URL.Query().Get("level"))
	executionID := r.URL.Query().Get("execution_id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "E_INTERNAL", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	conn := h.connections.Register(uid, level, executionID)
	defer h.connections.Unregister(conn.ID)

	fmt.Fprintf(w, "event: connected\ndata: {\"connection_id\":%q}\n\n", conn.ID)
	flusher.Flush()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			fmt.Fprintf(w, ":keepalive\n\n")
			flusher.Flush()
			h.connections.Heartbeat(conn.ID)

		case ev, open := <-conn.Events():
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

// POST /v1/progress/connections/{connection_id}/heartbeat
func (h *ProgressHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	connID := chi.URLParam(r, "connection_id")
	if !h.connections.Heartbeat(connID) {
		writeError(w, http.StatusNotFound, "E_NOT_FOUND", "connection not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /v1/progress/connections/{connection_id}/subscription
// An empty execution_id widens the subscription back to all of the user's
// executions.
func (h *ProgressHandler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	connID := chi.URLParam(r, "connection_id")

	var body struct {
		ExecutionID string `json:"execution_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", "malformed request body")
		return
	}

	if !h.connections.UpdateSubscription(connID, body.ExecutionID) {
		writeError(w, http.StatusNotFound, "E_NOT_FOUND", "connection not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
