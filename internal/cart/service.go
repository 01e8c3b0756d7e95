package cart

import (
	"context"
	"errors"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultRetries = 3

type cartStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	CompareAndSwapCart(ctx context.Context, id uuid.UUID, cart types.Cart, expectedVersion int64) (bool, error)
}

type productResolver interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

type conflictRecorder interface {
	IncCartConflict()
}

// Service exposes cart mutations and the reconciled read model.
type Service interface {
	View(ctx context.Context, userID uuid.UUID) (*View, error)
	Reconcile(ctx context.Context, userID uuid.UUID) (*Resolution, error)
	AddToCart(ctx context.Context, userID, productID uuid.UUID) (types.Cart, error)
	RemoveFromCart(ctx context.Context, userID, productID uuid.UUID) (types.Cart, error)
	ClearCart(ctx context.Context, userID uuid.UUID) error
	RemovePurchased(ctx context.Context, userID uuid.UUID, purchased types.Cart) error
}

// Option customizes the cart service.
type Option func(*service)

// WithConflictRecorder reports every lost compare-and-swap race.
func WithConflictRecorder(rec conflictRecorder) Option {
	return func(s *service) {
		s.conflicts = rec
	}
}

type service struct {
	store     cartStore
	products  productResolver
	retries   int
	conflicts conflictRecorder
}

// NewService builds the cart service. retries bounds how many times a write
// that lost a race is re-applied; values < 0 fall back to 3.
func NewService(store cartStore, products productResolver, retries int, opts ...Option) (Service, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart store required")
	}
	if products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "product resolver required")
	}
	if retries < 0 {
		retries = defaultRetries
	}
	svc := &service{store: store, products: products, retries: retries}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *service) View(ctx context.Context, userID uuid.UUID) (*View, error) {
	res, err := s.Reconcile(ctx, userID)
	if err != nil {
		return nil, err
	}
	view := NewView(res)
	return &view, nil
}

func (s *service) Reconcile(ctx context.Context, userID uuid.UUID) (*Resolution, error) {
	for attempt := 0; attempt <= s.retries; attempt++ {
		user, err := s.loadUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		res, err := s.resolve(ctx, user)
		if err != nil {
			return nil, err
		}
		if len(res.Orphans) == 0 {
			return res, nil
		}

		cleaned := user.Cart.Without(res.Orphans)
		won, err := s.store.CompareAndSwapCart(ctx, user.ID, cleaned, user.CartVersion)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "drop orphaned cart lines")
		}
		if won {
			res.Cart = cleaned
			res.Version = user.CartVersion + 1
			return res, nil
		}
		s.recordConflict()
	}
	return nil, conflictError()
}

func (s *service) AddToCart(ctx context.Context, userID, productID uuid.UUID) (types.Cart, error) {
	found, err := s.products.FindByIDs(ctx, []uuid.UUID{productID})
	if err != nil {
		return types.Cart{}, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load product")
	}
	if len(found) == 0 {
		return types.Cart{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return s.mutate(ctx, userID, func(current types.Cart) (types.Cart, bool) {
		return current.Add(productID), true
	})
}

func (s *service) RemoveFromCart(ctx context.Context, userID, productID uuid.UUID) (types.Cart, error) {
	return s.mutate(ctx, userID, func(current types.Cart) (types.Cart, bool) {
		if !current.Contains(productID) {
			return current, false
		}
		return current.Remove(productID), true
	})
}

func (s *service) ClearCart(ctx context.Context, userID uuid.UUID) error {
	_, err := s.mutate(ctx, userID, func(current types.Cart) (types.Cart, bool) {
		if current.IsEmpty() {
			return current, false
		}
		return types.EmptyCart(), true
	})
	return err
}

// RemovePurchased takes the purchased quantities out of the cart. Lines added
// after the purchase snapshot was taken are kept.
func (s *service) RemovePurchased(ctx context.Context, userID uuid.UUID, purchased types.Cart) error {
	_, err := s.mutate(ctx, userID, func(current types.Cart) (types.Cart, bool) {
		if current.IsEmpty() {
			return current, false
		}
		return current.Subtract(purchased), true
	})
	return err
}

// mutate re-reads the cart and re-applies fn until the versioned write wins
// or the retry budget runs out.
func (s *service) mutate(ctx context.Context, userID uuid.UUID, fn func(types.Cart) (types.Cart, bool)) (types.Cart, error) {
	for attempt := 0; attempt <= s.retries; attempt++ {
		user, err := s.loadUser(ctx, userID)
		if err != nil {
			return types.Cart{}, err
		}
		next, changed := fn(user.Cart.Clone())
		if !changed {
			return user.Cart, nil
		}
		won, err := s.store.CompareAndSwapCart(ctx, user.ID, next, user.CartVersion)
		if err != nil {
			return types.Cart{}, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "save cart")
		}
		if won {
			return next, nil
		}
		s.recordConflict()
	}
	return types.Cart{}, conflictError()
}

func (s *service) loadUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load cart")
	}
	return user, nil
}

func (s *service) resolve(ctx context.Context, user *models.User) (*Resolution, error) {
	res := &Resolution{
		UserID:  user.ID,
		Email:   user.Email,
		Cart:    user.Cart,
		Version: user.CartVersion,
		Lines:   []Line{},
		Total:   decimal.Zero,
	}
	if user.Cart.IsEmpty() {
		return res, nil
	}

	ids := make([]uuid.UUID, 0, len(user.Cart.Items))
	for _, item := range user.Cart.Items {
		ids = append(ids, item.ProductID)
	}
	found, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "resolve cart products")
	}
	byID := make(map[uuid.UUID]models.Product, len(found))
	for _, product := range found {
		byID[product.ID] = product
	}

	for _, item := range user.Cart.Items {
		product, ok := byID[item.ProductID]
		if !ok {
			res.Orphans = append(res.Orphans, item.ProductID)
			continue
		}
		line := Line{Product: product, Quantity: item.Quantity}
		res.Lines = append(res.Lines, line)
		res.Total = res.Total.Add(line.Subtotal())
	}
	return res, nil
}

func (s *service) recordConflict() {
	if s.conflicts != nil {
		s.conflicts.IncCartConflict()
	}
}

func conflictError() error {
	return pkgerrors.New(pkgerrors.CodeConflict, "cart was modified concurrently, please retry")
}
