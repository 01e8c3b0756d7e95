package enums

// CheckoutState names the step a checkout run reached.
type CheckoutState string

const (
	CheckoutStateCartSnapshotted  CheckoutState = "cart_snapshotted"
	CheckoutStateOrderPersisted   CheckoutState = "order_persisted"
	CheckoutStatePaymentAttempted CheckoutState = "payment_attempted"
	CheckoutStateCartCleared      CheckoutState = "cart_cleared"
	CheckoutStateAborted          CheckoutState = "aborted"
	CheckoutStatePaymentFailed    CheckoutState = "payment_failed"
)

// String implements fmt.Stringer.
func (s CheckoutState) String() string {
	return string(s)
}
