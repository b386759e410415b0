package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/agent"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/handler"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/middleware"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/service"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/stream"
)

// New builds the HTTP router. The executor and connection registry are
// created by main so the sweep loop and the handlers share the same
// instances.
func New(executor *service.Executor, agents *agent.Registry, connections *stream.Registry) http.Handler {
	healthH := handler.NewHealthHandler("0.1.0")
	execH := handler.NewExecutionHandler(executor, agents)
	progressH := handler.NewProgressHandler(connections)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Trace)
	r.Use(middleware.CORS)

	r.Get("/v1/health", healthH.Health)
	r.Get("/v1/version", healthH.Version)

	r.Get("/v1/agents", execH.ListAgents)
	r.Post("/v1/agents/{agent_id}/executions", execH.Start)
	r.Get("/v1/executions/{execution_id}", execH.Status)
	r.Delete("/v1/executions/{execution_id}", execH.Cancel)

	r.Get("/v1/progress/stream", progressH.Stream)
	r.Post("/v1/progress/connections/{connection_id}/heartbeat", progressH.Heartbeat)
	r.Put("/v1/progress/connections/{connection_id}/subscription", progressH.UpdateSubscription)

	return r
}
