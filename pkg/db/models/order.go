package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Order is the append-only record of a checkout. Products never change after
// insert; only the payment columns move.
type Order struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	UserEmail     string            `gorm:"column:user_email;not null"`
	Products      types.OrderLines  `gorm:"column:products;type:jsonb;serializer:json;not null"`
	Status        enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	Currency      enums.Currency    `gorm:"column:currency;type:text;not null;default:'usd'"`
	AmountCents   int64             `gorm:"column:amount_cents;not null"`
	PaymentSource string            `gorm:"column:payment_source;not null;default:''"`
	ChargeID      *string           `gorm:"column:charge_id"`
	FailureReason *string           `gorm:"column:failure_reason"`
	PaidAt        *time.Time        `gorm:"column:paid_at"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
