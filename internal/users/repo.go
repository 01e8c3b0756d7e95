package users

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository exposes user-related persistence operations, including the
// versioned cart column.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Ensure inserts the account when it does not exist yet. Existing rows,
// including their carts, are left untouched.
func (r *Repository) Ensure(ctx context.Context, user *models.User) error {
	if user.Cart.Items == nil {
		user.Cart = types.EmptyCart()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(user).
		Error
}

// CompareAndSwapCart stores cart only when the row still carries
// expectedVersion, bumping the version on success. It reports whether the
// write won.
func (r *Repository) CompareAndSwapCart(ctx context.Context, id uuid.UUID, cart types.Cart, expectedVersion int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND cart_version = ?", id, expectedVersion).
		Updates(map[string]any{
			"cart":         cart,
			"cart_version": gorm.Expr("cart_version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
