package stream

import (
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/model"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/progress"
)

// Router fans progress events out to matching connections.
//
// A connection matches when its user owns the execution and its subscription
// filter is either empty or equals the event's execution id. Each recipient
// gets its own copy of the event with the step rendered at that connection's
// detail level: one event, many renderings, decided by the reader.
type Router struct {
	registry *Registry
}

// NewRouter creates a router over the given registry.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Publish delivers the event to every matching live connection. step may be
// nil for terminal events whose message is already final. Delivery is
// at-most-once: a connection with a full buffer simply misses the event.
func (r *Router) Publish(userID string, step *progress.Step, ev model.ProgressEvent) {
	reg := r.registry
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for _, conn := range reg.conns {
		if conn.UserID != userID {
			continue
		}
		if conn.executionID != "" && conn.executionID != ev.ExecutionID {
			continue
		}

		rendered := ev
		if step != nil {
			rendered.Message = step.Text(conn.Level)
		}

		select {
		case conn.ch <- &rendered:
		default:
			// Slow consumer — drop. Progress events are snapshots, the
			// next one supersedes this one anyway.
		}
	}
}
