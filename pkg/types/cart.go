package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// CartItem is one line of a shopping cart. Quantity is always >= 1 once stored.
type CartItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// Cart is the per-user cart value. Lines are unique by product id and keep
// their insertion order.
type Cart struct {
	Items []CartItem `json:"items"`
}

// EmptyCart returns a cart with no lines.
func EmptyCart() Cart {
	return Cart{Items: []CartItem{}}
}

// Clone returns a deep copy so mutations never alias stored state.
func (c Cart) Clone() Cart {
	items := make([]CartItem, len(c.Items))
	copy(items, c.Items)
	return Cart{Items: items}
}

// Add increments the line for productID or appends it with quantity 1.
func (c Cart) Add(productID uuid.UUID) Cart {
	next := c.Clone()
	for i := range next.Items {
		if next.Items[i].ProductID == productID {
			next.Items[i].Quantity++
			return next
		}
	}
	next.Items = append(next.Items, CartItem{ProductID: productID, Quantity: 1})
	return next
}

// Remove drops the line for productID. Removing an absent product is a no-op.
func (c Cart) Remove(productID uuid.UUID) Cart {
	next := Cart{Items: make([]CartItem, 0, len(c.Items))}
	for _, item := range c.Items {
		if item.ProductID == productID {
			continue
		}
		next.Items = append(next.Items, item)
	}
	return next
}

// Without drops every line whose product id is in ids.
func (c Cart) Without(ids []uuid.UUID) Cart {
	if len(ids) == 0 {
		return c.Clone()
	}
	drop := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	next := Cart{Items: make([]CartItem, 0, len(c.Items))}
	for _, item := range c.Items {
		if _, ok := drop[item.ProductID]; ok {
			continue
		}
		next.Items = append(next.Items, item)
	}
	return next
}

// Subtract lowers each line by the quantity held in purchased, dropping lines
// that reach zero. Lines added after purchased was taken survive.
func (c Cart) Subtract(purchased Cart) Cart {
	next := Cart{Items: make([]CartItem, 0, len(c.Items))}
	for _, item := range c.Items {
		item.Quantity -= purchased.QuantityOf(item.ProductID)
		if item.Quantity <= 0 {
			continue
		}
		next.Items = append(next.Items, item)
	}
	return next
}

// Contains reports whether the cart has a line for productID.
func (c Cart) Contains(productID uuid.UUID) bool {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// QuantityOf returns the quantity stored for productID, or 0.
func (c Cart) QuantityOf(productID uuid.UUID) int {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item.Quantity
		}
	}
	return 0
}

// TotalQuantity sums the quantities of every line.
func (c Cart) TotalQuantity() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Value implements driver.Valuer for jsonb storage.
func (c Cart) Value() (driver.Value, error) {
	if c.Items == nil {
		c.Items = []CartItem{}
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner for jsonb storage.
func (c *Cart) Scan(value any) error {
	if value == nil {
		*c = EmptyCart()
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported cart column type %T", value)
	}
	var decoded Cart
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decode cart: %w", err)
	}
	if decoded.Items == nil {
		decoded.Items = []CartItem{}
	}
	*c = decoded
	return nil
}
