package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/domain"
	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/ports"
	"gorm.io/gorm"
)

type productRepository struct {
	db *gorm.DB
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	row := productModel{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		ImageURL:    product.ImageURL,
		StockLevel:  product.StockLevel,
		Published:   product.Published,
		CreatedAt:   product.CreatedAt.UTC(),
		UpdatedAt:   product.UpdatedAt.UTC(),
	}
	if err := conn(ctx, r.db).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Product{}, fmt.Errorf("%w: product %s already exists", domain.ErrConflict, product.ID)
		}
		return domain.Product{}, err
	}
	return toDomainProduct(row), nil
}

func (r *productRepository) Update(ctx context.Context, params ports.UpdateProductParams) (domain.Product, error) {
	res := conn(ctx, r.db).Model(&productModel{}).Where("id = ?", params.ID).Updates(map[string]any{
		"name":        params.Name,
		"description": params.Description,
		"price":       params.Price,
		"image_url":   params.ImageURL,
		"stock_level": params.StockLevel,
		"published":   params.Published,
		"updated_at":  params.UpdatedAt.UTC(),
	})
	if res.Error != nil {
		return domain.Product{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Product{}, domain.ErrNotFound
	}
	return r.GetByID(ctx, params.ID)
}

func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := conn(ctx, r.db).Where("id = ?", id).Delete(&productModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *productRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Product, error) {
	var row productModel
	if err := conn(ctx, r.db).Where("id = ?", id).Take(&row).Error; err != nil {
		return domain.Product{}, mapNotFound(err)
	}
	return toDomainProduct(row), nil
}

func (r *productRepository) List(ctx context.Context) ([]domain.Product, error) {
	var rows []productModel
	if err := conn(ctx, r.db).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainProduct(row))
	}
	return out, nil
}

var _ ports.ProductRepository = (*productRepository)(nil)
