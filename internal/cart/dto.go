package cart

import (
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line is a cart line resolved against the live catalog.
type Line struct {
	Product  models.Product
	Quantity int
}

// Subtotal is quantity x live price.
func (l Line) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Resolution is the outcome of reconciling a stored cart with the catalog.
// Cart and Version describe the stored row after orphan cleanup.
type Resolution struct {
	UserID  uuid.UUID
	Email   string
	Cart    types.Cart
	Version int64
	Lines   []Line
	Orphans []uuid.UUID
	Total   decimal.Decimal
}

// Purchased returns the cart made of the resolved lines only.
func (r *Resolution) Purchased() types.Cart {
	purchased := types.Cart{Items: make([]types.CartItem, 0, len(r.Lines))}
	for _, line := range r.Lines {
		purchased.Items = append(purchased.Items, types.CartItem{ProductID: line.Product.ID, Quantity: line.Quantity})
	}
	return purchased
}

// IsEmpty reports whether nothing in the cart resolved.
func (r *Resolution) IsEmpty() bool {
	return len(r.Lines) == 0
}

// LineView is the display shape of a cart line.
type LineView struct {
	Product  catalog.ProductDTO `json:"product"`
	Quantity int                `json:"quantity"`
	Subtotal decimal.Decimal    `json:"subtotal"`
}

// View is the cart page payload.
type View struct {
	Items         []LineView      `json:"items"`
	TotalQuantity int             `json:"total_quantity"`
	Total         decimal.Decimal `json:"total"`
}

// NewView shapes a resolution for display.
func NewView(res *Resolution) View {
	view := View{Items: make([]LineView, 0, len(res.Lines)), Total: res.Total}
	for _, line := range res.Lines {
		view.Items = append(view.Items, LineView{
			Product:  catalog.FromModel(line.Product),
			Quantity: line.Quantity,
			Subtotal: line.Subtotal(),
		})
		view.TotalQuantity += line.Quantity
	}
	return view
}
