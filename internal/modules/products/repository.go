package products

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("product not found")

type Repository interface {
	ListActive(ctx context.Context, limit, offset int) ([]Product, error)
	GetActive(ctx context.Context, id string) (Product, error)
}

type GormRepo struct {
	db *gorm.DB
}

func NewGormRepo(db *gorm.DB) *GormRepo {
	return &GormRepo{db: db}
}

func (r *GormRepo) ListActive(ctx context.Context, limit, offset int) ([]Product, error) {
	if limit <= 0 || limit > 100 {
		limit = 24
	}
	var items []Product
	err := r.db.WithContext(ctx).
		Model(&Product{}).
		Where("ativo = ?", true).
		Order("criado_em desc").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	return items, err
}

// GetActive returns the product only while it is on sale.
func (r *GormRepo) GetActive(ctx context.Context, id string) (Product, error) {
	var p Product
	err := r.db.WithContext(ctx).
		Model(&Product{}).
		Where("id = ? AND ativo = ?", id, true).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Product{}, ErrNotFound
	}
	return p, err
}
