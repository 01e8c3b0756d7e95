package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultPerPage = 2

// Service exposes the read side of the catalog plus admin seeding.
type Service interface {
	ListPage(ctx context.Context, page int) (*ListPageResult, error)
	Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	Create(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type productRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	List(ctx context.Context, offset, limit int) ([]models.Product, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type service struct {
	repo    productRepository
	perPage int
}

// NewService builds the catalog service. perPage <= 0 falls back to 2.
func NewService(repo productRepository, perPage int) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "product repository required")
	}
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	return &service{repo: repo, perPage: perPage}, nil
}

func (s *service) ListPage(ctx context.Context, page int) (*ListPageResult, error) {
	page = pagination.ParsePage(page)

	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "count products")
	}
	rows, err := s.repo.List(ctx, pagination.Offset(page, s.perPage), s.perPage)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list products")
	}

	products := make([]ProductDTO, 0, len(rows))
	for _, row := range rows {
		products = append(products, FromModel(row))
	}
	return &ListPageResult{
		Products:   products,
		Pagination: pagination.Compute(s.perPage, page, total),
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load product")
	}
	dto := FromModel(*product)
	return &dto, nil
}

func (s *service) Create(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	if !input.Price.Equal(input.Price.Round(2)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price supports at most two decimal places")
	}

	product := &models.Product{
		ID:          uuid.New(),
		Title:       title,
		Price:       input.Price,
		Description: strings.TrimSpace(input.Description),
		ImageURL:    strings.TrimSpace(input.ImageURL),
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "create product")
	}
	dto := FromModel(*product)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "delete product")
	}
	if !removed {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}
