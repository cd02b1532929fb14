package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/application"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
)

type Handler struct {
	service   *application.Service
	ready     func(ctx context.Context) error
	operators ports.OperatorVerifier
}

func NewHandler(service *application.Service, ready func(ctx context.Context) error, operators ports.OperatorVerifier) *Handler {
	return &Handler{service: service, ready: ready, operators: operators}
}

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ok") })
	r.Get("/readyz", handler.readyz)

	r.Route("/api", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", handler.listProducts)
			r.Post("/", handler.createProduct)
			r.Get("/{id}", handler.getProduct)
			r.Put("/{id}", handler.updateProduct)
			r.Delete("/{id}", handler.deleteProduct)
		})
		r.Get("/recommendations/{userId}", handler.getRecommendations)

		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(operatorMiddleware(handler.operators))
			r.Get("/outbox", handler.adminListOutbox)
			r.Get("/outbox/{id}", handler.adminGetOutbox)
			r.Post("/outbox/{id}/requeue", handler.adminRequeueOutbox)
			r.Get("/processed-events/{eventId}", handler.adminGetProcessedEvent)
		})
	})
	return r
}
