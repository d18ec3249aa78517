package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	middlewarePkg "pdf-ai-assistant/internal/middleware"

	eventbus "pdf-ai-assistant/internal/events"
	chatHandler "pdf-ai-assistant/internal/handler/chat"
	eventsHandler "pdf-ai-assistant/internal/handler/events"
	uploadHandler "pdf-ai-assistant/internal/handler/upload"
	chatService "pdf-ai-assistant/internal/service/chat"
	"pdf-ai-assistant/internal/service/conversation"
	uploadService "pdf-ai-assistant/internal/service/upload"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(
	registry *chatService.Registry,
	conv *conversation.Controller,
	uploads *uploadService.Controller,
	bus *eventbus.Bus,
	maxUploadBytes int64,
	log zerolog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		chatHandler.New(registry, conv, bus, log).RegisterRoutes(api)
		uploadHandler.New(uploads, bus, maxUploadBytes, log).RegisterRoutes(api)
		eventsHandler.New(bus, log).RegisterRoutes(api)
	})

	return r
}
