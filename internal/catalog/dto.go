package catalog

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductDTO is the public shape of a catalog product.
type ProductDTO struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ListPageResult is one page of the shop listing.
type ListPageResult struct {
	Products   []ProductDTO    `json:"products"`
	Pagination pagination.Page `json:"pagination"`
}

// CreateProductInput holds the validated payload for a new product.
type CreateProductInput struct {
	Title       string
	Price       decimal.Decimal
	Description string
	ImageURL    string
}

// FromModel maps a stored product to its public shape.
func FromModel(p models.Product) ProductDTO {
	return ProductDTO{
		ID:          p.ID,
		Title:       p.Title,
		Price:       p.Price,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		CreatedAt:   p.CreatedAt,
	}
}
