package enums

// ChargeStatus mirrors the gateway-reported outcome of a charge.
type ChargeStatus string

const (
	ChargeStatusSucceeded ChargeStatus = "succeeded"
	ChargeStatusPending   ChargeStatus = "pending"
	ChargeStatusFailed    ChargeStatus = "failed"
)

// String implements fmt.Stringer.
func (s ChargeStatus) String() string {
	return string(s)
}

// Accepted reports whether the gateway took the charge (settled or settling).
func (s ChargeStatus) Accepted() bool {
	return s == ChargeStatusSucceeded || s == ChargeStatusPending
}
