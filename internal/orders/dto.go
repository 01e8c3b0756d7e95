package orders

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderUser identifies the buyer on an order payload.
type OrderUser struct {
	Email  string    `json:"email"`
	UserID uuid.UUID `json:"userId"`
}

// OrderDTO is the public shape of a placed order.
type OrderDTO struct {
	ID        uuid.UUID         `json:"id"`
	User      OrderUser         `json:"user"`
	Products  types.OrderLines  `json:"products"`
	Status    enums.OrderStatus `json:"status"`
	Currency  enums.Currency    `json:"currency"`
	Total     decimal.Decimal   `json:"total"`
	ChargeID  *string           `json:"charge_id,omitempty"`
	PaidAt    *time.Time        `json:"paid_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// OrderList wraps a page of orders plus the next cursor.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// ChargeOutcome is a settled gateway result applied to a pending order.
type ChargeOutcome struct {
	Status        enums.OrderStatus
	ChargeID      string
	FailureReason string
	At            time.Time
}

// ToDTO maps a stored order to its public shape. Total is derived from the
// snapshot lines.
func ToDTO(order models.Order) OrderDTO {
	products := order.Products
	if products == nil {
		products = types.OrderLines{}
	}
	return OrderDTO{
		ID:        order.ID,
		User:      OrderUser{Email: order.UserEmail, UserID: order.UserID},
		Products:  products,
		Status:    order.Status,
		Currency:  order.Currency,
		Total:     products.Total(),
		ChargeID:  order.ChargeID,
		PaidAt:    order.PaidAt,
		CreatedAt: order.CreatedAt,
	}
}
