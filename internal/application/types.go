package application

import (
	"encoding/json"
	"time"

	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/domain"
)

type Config struct {
	ServiceName     string
	ProductCacheTTL time.Duration
}

type CreateProductRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"image_url,omitempty"`
	StockLevel  int     `json:"stock_level"`
	Published   bool    `json:"published"`
}

type UpdateProductRequest struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	ImageURL    *string  `json:"image_url,omitempty"`
	StockLevel  *int     `json:"stock_level,omitempty"`
	Published   *bool    `json:"published,omitempty"`
}

type RecommendationResult struct {
	UserID    string
	LatencyMS int64
	EventID   string
	Body      json.RawMessage
}

type productEventData struct {
	ProductID     string   `json:"productId"`
	Name          string   `json:"name,omitempty"`
	Price         float64  `json:"price,omitempty"`
	StockLevel    int      `json:"stockLevel"`
	Published     bool     `json:"published"`
	ChangedFields []string `json:"changedFields,omitempty"`
}

type inferenceServedData struct {
	UserID          domain.UserID   `json:"user_id"`
	LatencyMS       int64           `json:"latency_ms"`
	Recommendations json.RawMessage `json:"recommendations"`
}
