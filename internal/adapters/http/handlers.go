package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/application"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/domain"
)

type productResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	ImageURL    string    `json:"image_url,omitempty"`
	StockLevel  int       `json:"stock_level"`
	Published   bool      `json:"published"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		ImageURL:    p.ImageURL,
		StockLevel:  p.StockLevel,
		Published:   p.Published,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

type outboxEventResponse struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	AggregateID  string          `json:"aggregate_id"`
	Status       string          `json:"status"`
	AttemptCount int             `json:"attempt_count"`
	LastError    *string         `json:"last_error,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"created_at"`
	SentAt       *time.Time      `json:"sent_at,omitempty"`
}

func toOutboxEventResponse(evt domain.OutboxEvent) outboxEventResponse {
	return outboxEventResponse{
		ID:           evt.ID.String(),
		EventType:    evt.EventType,
		AggregateID:  evt.AggregateID,
		Status:       string(evt.Status),
		AttemptCount: evt.AttemptCount,
		LastError:    evt.LastError,
		Payload:      json.RawMessage(evt.Payload),
		CreatedAt:    evt.CreatedAt,
		SentAt:       evt.SentAt,
	}
}

type processedEventResponse struct {
	EventID     string    `json:"event_id"`
	Status      string    `json:"status"`
	Error       *string   `json:"error,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

type recommendationsResponse struct {
	UserID     string          `json:"user_id"`
	LatencyMS  int64           `json:"latency_ms"`
	EventID    string          `json:"event_id"`
	Prediction json.RawMessage `json:"prediction"`
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			logHTTPOperationError(r.Context(), "readyz", http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", err)
			writeError(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "not ready")
			return
		}
	}
	writeMessage(w, http.StatusOK, "ready")
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListProducts(r.Context())
	if err != nil {
		writeDomainError(w, r, "list_products", err)
		return
	}
	out := make([]productResponse, 0, len(items))
	for _, p := range items {
		out = append(out, toProductResponse(p))
	}
	writeSuccess(w, http.StatusOK, out)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req application.CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body")
		return
	}
	product, err := h.service.CreateProduct(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, "create_product", err)
		return
	}
	writeSuccess(w, http.StatusCreated, toProductResponse(product))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "get_product", err)
		return
	}
	writeSuccess(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req application.UpdateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body")
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, r, "update_product", err)
		return
	}
	writeSuccess(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, "delete_product", err)
		return
	}
	writeMessage(w, http.StatusOK, "product deleted")
}

func (h *Handler) getRecommendations(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetRecommendations(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeDomainError(w, r, "get_recommendations", err)
		return
	}
	writeSuccess(w, http.StatusOK, recommendationsResponse{
		UserID:     res.UserID,
		LatencyMS:  res.LatencyMS,
		EventID:    res.EventID,
		Prediction: res.Body,
	})
}

func (h *Handler) adminListOutbox(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	items, err := h.service.ListOutbox(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		writeDomainError(w, r, "list_outbox", err)
		return
	}
	out := make([]outboxEventResponse, 0, len(items))
	for _, evt := range items {
		out = append(out, toOutboxEventResponse(evt))
	}
	writeSuccess(w, http.StatusOK, out)
}

func (h *Handler) adminGetOutbox(w http.ResponseWriter, r *http.Request) {
	evt, err := h.service.GetOutboxEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "get_outbox_event", err)
		return
	}
	writeSuccess(w, http.StatusOK, toOutboxEventResponse(evt))
}

func (h *Handler) adminRequeueOutbox(w http.ResponseWriter, r *http.Request) {
	evt, err := h.service.RequeueOutboxEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "requeue_outbox_event", err)
		return
	}
	httpLogger().InfoContext(r.Context(), "outbox event requeued by operator",
		"operation", "requeue_outbox_event",
		"outcome", "success",
		"operator", operatorFromContext(r.Context()),
		"outbox_id", evt.ID.String(),
		"request_id", requestIDFromContext(r.Context()),
	)
	writeSuccess(w, http.StatusOK, toOutboxEventResponse(evt))
}

func (h *Handler) adminGetProcessedEvent(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetProcessedEvent(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		writeDomainError(w, r, "get_processed_event", err)
		return
	}
	writeSuccess(w, http.StatusOK, processedEventResponse{
		EventID:     rec.EventID,
		Status:      string(rec.Status),
		Error:       rec.Error,
		ProcessedAt: rec.ProcessedAt,
	})
}
