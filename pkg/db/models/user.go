package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// User is the account record. The cart lives on it and is versioned for
// compare-and-swap writes.
type User struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email       string         `gorm:"column:email;type:text;not null;uniqueIndex"`
	Role        enums.UserRole `gorm:"column:role;type:text;not null;default:'customer'"`
	Cart        types.Cart     `gorm:"column:cart;type:jsonb;not null"`
	CartVersion int64          `gorm:"column:cart_version;not null;default:0"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
