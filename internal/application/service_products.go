package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
)

const productsAllCacheKey = "products:all"

func productCacheKey(id string) string {
	return "products:id:" + id
}

type productCacheEntry struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	ImageURL    string    `json:"image_url"`
	StockLevel  int       `json:"stock_level"`
	Published   bool      `json:"published"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *Service) CreateProduct(ctx context.Context, req CreateProductRequest) (domain.Product, error) {
	if err := domain.ValidateProduct(req.Name, req.Description, req.Price, req.StockLevel, req.ImageURL); err != nil {
		return domain.Product{}, err
	}
	now := s.nowFn()
	var created domain.Product
	err := s.Write(ctx, func(ctx context.Context, events EventAppender) error {
		var err error
		created, err = s.products.Create(ctx, domain.Product{
			ID:          s.newID(),
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			ImageURL:    req.ImageURL,
			StockLevel:  req.StockLevel,
			Published:   req.Published,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}
		_, err = events.Append(ctx, domain.EventTypeProductCreated, created.ID.String(), newProductEventData(created, nil))
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidateProductCache(ctx, created.ID.String())
	return created, nil
}

// UpdateProduct applies the set fields. PRODUCT_UPDATED is emitted only when
// something actually changed.
func (s *Service) UpdateProduct(ctx context.Context, id string, req UpdateProductRequest) (domain.Product, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		return domain.Product{}, fmt.Errorf("%w: invalid product id", domain.ErrInvalidInput)
	}
	var (
		result  domain.Product
		changed []string
	)
	err = s.Write(ctx, func(ctx context.Context, events EventAppender) error {
		current, err := s.products.GetByID(ctx, productID)
		if err != nil {
			return err
		}
		next := current
		changed = applyProductUpdate(&next, req)
		if len(changed) == 0 {
			result = current
			return nil
		}
		if err := domain.ValidateProduct(next.Name, next.Description, next.Price, next.StockLevel, next.ImageURL); err != nil {
			return err
		}
		result, err = s.products.Update(ctx, ports.UpdateProductParams{
			ID:          productID,
			Name:        next.Name,
			Description: next.Description,
			Price:       next.Price,
			ImageURL:    next.ImageURL,
			StockLevel:  next.StockLevel,
			Published:   next.Published,
			UpdatedAt:   s.nowFn(),
		})
		if err != nil {
			return err
		}
		_, err = events.Append(ctx, domain.EventTypeProductUpdated, productID.String(), newProductEventData(result, changed))
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}
	if len(changed) > 0 {
		s.invalidateProductCache(ctx, productID.String())
	}
	return result, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	productID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: invalid product id", domain.ErrInvalidInput)
	}
	err = s.Write(ctx, func(ctx context.Context, events EventAppender) error {
		current, err := s.products.GetByID(ctx, productID)
		if err != nil {
			return err
		}
		if err := s.products.Delete(ctx, productID); err != nil {
			return err
		}
		_, err = events.Append(ctx, domain.EventTypeProductDeleted, productID.String(), productEventData{ProductID: current.ID.String(), Name: current.Name})
		return err
	})
	if err != nil {
		return err
	}
	s.invalidateProductCache(ctx, productID.String())
	return nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		return domain.Product{}, fmt.Errorf("%w: invalid product id", domain.ErrInvalidInput)
	}
	var entry productCacheEntry
	if s.cacheGet(ctx, productCacheKey(productID.String()), &entry) {
		return entry.toDomain(), nil
	}
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	s.cacheSet(ctx, productCacheKey(productID.String()), toProductCacheEntry(product))
	return product, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var entries []productCacheEntry
	if s.cacheGet(ctx, productsAllCacheKey, &entries) {
		out := make([]domain.Product, 0, len(entries))
		for _, entry := range entries {
			out = append(out, entry.toDomain())
		}
		return out, nil
	}
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, err
	}
	entries = make([]productCacheEntry, 0, len(products))
	for _, p := range products {
		entries = append(entries, toProductCacheEntry(p))
	}
	s.cacheSet(ctx, productsAllCacheKey, entries)
	return products, nil
}

func applyProductUpdate(p *domain.Product, req UpdateProductRequest) []string {
	var changed []string
	if req.Name != nil && *req.Name != p.Name {
		p.Name = *req.Name
		changed = append(changed, "name")
	}
	if req.Description != nil && *req.Description != p.Description {
		p.Description = *req.Description
		changed = append(changed, "description")
	}
	if req.Price != nil && *req.Price != p.Price {
		p.Price = *req.Price
		changed = append(changed, "price")
	}
	if req.ImageURL != nil && *req.ImageURL != p.ImageURL {
		p.ImageURL = *req.ImageURL
		changed = append(changed, "image_url")
	}
	if req.StockLevel != nil && *req.StockLevel != p.StockLevel {
		p.StockLevel = *req.StockLevel
		changed = append(changed, "stock_level")
	}
	if req.Published != nil && *req.Published != p.Published {
		p.Published = *req.Published
		changed = append(changed, "published")
	}
	return changed
}

func newProductEventData(p domain.Product, changed []string) productEventData {
	return productEventData{
		ProductID:     p.ID.String(),
		Name:          p.Name,
		Price:         p.Price,
		StockLevel:    p.StockLevel,
		Published:     p.Published,
		ChangedFields: changed,
	}
}

func toProductCacheEntry(p domain.Product) productCacheEntry {
	return productCacheEntry{
		ID: p.ID, Name: p.Name, Description: p.Description, Price: p.Price, ImageURL: p.ImageURL,
		StockLevel: p.StockLevel, Published: p.Published, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func (e productCacheEntry) toDomain() domain.Product {
	return domain.Product{
		ID: e.ID, Name: e.Name, Description: e.Description, Price: e.Price, ImageURL: e.ImageURL,
		StockLevel: e.StockLevel, Published: e.Published, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
	}
}

func (s *Service) cacheGet(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	raw, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logCacheFailure(ctx, "get", key, err)
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.logCacheFailure(ctx, "decode", key, err)
		return false
	}
	return true
}

func (s *Service) cacheSet(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		s.logCacheFailure(ctx, "encode", key, err)
		return
	}
	if err := s.cache.Set(ctx, key, string(raw), s.cfg.ProductCacheTTL); err != nil {
		s.logCacheFailure(ctx, "set", key, err)
	}
}

func (s *Service) invalidateProductCache(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, productsAllCacheKey, productCacheKey(id)); err != nil {
		s.logCacheFailure(ctx, "invalidate", productCacheKey(id), err)
	}
}

func (s *Service) logCacheFailure(ctx context.Context, op, key string, err error) {
	s.logger.WarnContext(ctx, "product cache unavailable",
		"module", "application.products",
		"layer", "service",
		"operation", "cache_"+op,
		"outcome", "degraded",
		"cache_key", key,
		"error", err,
	)
}
