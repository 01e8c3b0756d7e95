package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for the orders table.
type Repository interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByOwner(ctx context.Context, userID uuid.UUID, params ListParams) ([]models.Order, *pagination.Cursor, error)
	MarkPaid(ctx context.Context, id uuid.UUID, chargeID string, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, chargeID *string) (bool, error)
	AttachCharge(ctx context.Context, id uuid.UUID, chargeID string) error
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// ListParams is the decoded cursor query for the order history.
type ListParams struct {
	Limit  int
	Cursor *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByOwner(ctx context.Context, userID uuid.UUID, params ListParams) ([]models.Order, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var orders []models.Order
	err := query.Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&orders).Error
	if err != nil {
		return nil, nil, err
	}

	page, next := pagination.SplitPage(orders, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return page, next, nil
}

// MarkPaid moves a pending order to paid. It reports false when the order
// was no longer pending.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, chargeID string, paidAt time.Time) (bool, error) {
	return r.transition(ctx, id, map[string]any{
		"status":    enums.OrderStatusPaid,
		"charge_id": chargeID,
		"paid_at":   paidAt,
	})
}

// MarkFailed moves a pending order to failed with a reason.
func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, chargeID *string) (bool, error) {
	updates := map[string]any{
		"status":         enums.OrderStatusFailed,
		"failure_reason": reason,
	}
	if chargeID != nil {
		updates["charge_id"] = *chargeID
	}
	return r.transition(ctx, id, updates)
}

// AttachCharge records the gateway charge id on a still pending order.
func (r *repository) AttachCharge(ctx context.Context, id uuid.UUID, chargeID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPending).
		Update("charge_id", chargeID).
		Error
}

func (r *repository) FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	query := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) transition(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
