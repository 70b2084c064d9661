package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	agenthandler "github.com/fetti/rideagent/internal/handler/agent"
	middlewarePkg "github.com/fetti/rideagent/internal/middleware"
)

// NewRouter wires HTTP routes to the relay.
func NewRouter(agentHandler *agenthandler.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/health", agentHandler.Health)

	r.Route("/api", func(api chi.Router) {
		agentHandler.RegisterRoutes(api)
	})

	return r
}
