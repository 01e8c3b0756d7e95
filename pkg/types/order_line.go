package types

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductSnapshotVersion is the schema version written into new snapshots.
const ProductSnapshotVersion = 1

// ProductSnapshot freezes the product fields an order needs at purchase time.
type ProductSnapshot struct {
	SchemaVersion int             `json:"schema_version"`
	ID            uuid.UUID       `json:"id"`
	Title         string          `json:"title"`
	Price         decimal.Decimal `json:"price"`
	Description   string          `json:"description"`
	ImageURL      string          `json:"image_url"`
}

// OrderLine is one immutable line of a placed order.
type OrderLine struct {
	Product  ProductSnapshot `json:"product"`
	Quantity int             `json:"quantity"`
}

// Subtotal is quantity × snapshot price.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// OrderLines is the persisted line list of an order.
type OrderLines []OrderLine

// Total sums every line subtotal using exact decimal arithmetic.
func (ls OrderLines) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range ls {
		total = total.Add(line.Subtotal())
	}
	return total
}
