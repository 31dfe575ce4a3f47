package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all routes on the given chi router. wsHandler serves
// the realtime upgrade; agentSecret guards the internal agent callbacks.
func MountRoutes(r chi.Router, h *Handlers, wsHandler http.HandlerFunc, agentSecret string) {
	r.Get("/healthz", h.Health)
	r.Get("/ws", wsHandler)

	// Agent callbacks (shared-secret bearer auth, not user-facing)
	r.Route("/internal", func(r chi.Router) {
		r.Use(AgentAuth(agentSecret))
		r.Post("/tools/execute", h.ExecuteTool)
		r.Post("/audit/tool/await", h.AwaitToolDecision)
	})
}
