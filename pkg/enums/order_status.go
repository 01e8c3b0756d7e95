package enums

// OrderStatus tracks the payment lifecycle of a placed order.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusFailed  OrderStatus = "failed"
)

var orderStatuses = []OrderStatus{OrderStatusPending, OrderStatusPaid, OrderStatusFailed}

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool { return member(s, orderStatuses) }

// IsTerminal reports whether no further transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusFailed
}

// CanTransitionTo allows only pending -> paid and pending -> failed.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return s == OrderStatusPending && next.IsTerminal()
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return parse("order status", value, orderStatuses)
}
