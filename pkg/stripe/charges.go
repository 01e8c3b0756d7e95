package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/charge"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// MetadataOrderID is the metadata key linking a charge back to its order.
const MetadataOrderID = "order_id"

var (
	// ErrCardDeclined marks a charge the card issuer refused.
	ErrCardDeclined = errors.New("card declined")
	// ErrInvalidCharge marks a request rejected before any money moved.
	ErrInvalidCharge = errors.New("invalid charge")
)

// Definitive reports whether err is a final answer for the charge. Any other
// error (timeout, transport, 5xx) leaves the outcome unknown and the charge
// may still have been captured under its idempotency key.
func Definitive(err error) bool {
	return errors.Is(err, ErrCardDeclined) || errors.Is(err, ErrInvalidCharge)
}

// ChargeRequest describes a single card charge in minor currency units.
type ChargeRequest struct {
	AmountCents    int64
	Currency       enums.Currency
	Description    string
	Source         string
	Metadata       map[string]string
	IdempotencyKey string
}

// ChargeConfirmation is the gateway's answer to a ChargeRequest.
type ChargeConfirmation struct {
	ChargeID       string
	Status         enums.ChargeStatus
	AmountCents    int64
	FailureMessage string
}

// Charger captures payments.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeConfirmation, error)
}

type chargeCreator func(params *stripe.ChargeParams) (*stripe.Charge, error)

// Charges sends charges through the Stripe API configured by NewClient.
type Charges struct {
	create chargeCreator
}

// NewCharges binds a charge client to an initialized Stripe client.
func NewCharges(client *Client) (*Charges, error) {
	if client == nil {
		return nil, errors.New("stripe client is required")
	}
	return &Charges{create: charge.New}, nil
}

// Validate checks the request before it reaches the network.
func (r ChargeRequest) Validate() error {
	if r.AmountCents <= 0 {
		return fmt.Errorf("charge amount must be positive, got %d", r.AmountCents)
	}
	if !r.Currency.IsValid() {
		return fmt.Errorf("unsupported currency %q", r.Currency)
	}
	if strings.TrimSpace(r.Source) == "" {
		return errors.New("payment source is required")
	}
	if strings.TrimSpace(r.Metadata[MetadataOrderID]) == "" {
		return errors.New("charge metadata must include order_id")
	}
	return nil
}

// Charge creates the charge and waits for Stripe's verdict. A declined card is
// returned as an error carrying the decline message.
func (c *Charges) Charge(ctx context.Context, req ChargeRequest) (*ChargeConfirmation, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCharge, err)
	}

	params := &stripe.ChargeParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(req.Currency.String()),
		Description: stripe.String(req.Description),
	}
	params.Context = ctx
	if err := params.SetSource(req.Source); err != nil {
		return nil, fmt.Errorf("%w: set charge source: %v", ErrInvalidCharge, err)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	ch, err := c.create(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && declined(stripeErr) {
			return nil, fmt.Errorf("%w: %s", ErrCardDeclined, stripeErr.Msg)
		}
		return nil, fmt.Errorf("create charge: %w", err)
	}
	return confirmationFromCharge(ch), nil
}

func declined(err *stripe.Error) bool {
	return err.Code == stripe.ErrorCodeCardDeclined || err.Type == stripe.ErrorTypeCard
}

func confirmationFromCharge(ch *stripe.Charge) *ChargeConfirmation {
	if ch == nil {
		return &ChargeConfirmation{Status: enums.ChargeStatusFailed}
	}
	return &ChargeConfirmation{
		ChargeID:       ch.ID,
		Status:         ChargeStatusOf(ch),
		AmountCents:    ch.Amount,
		FailureMessage: ch.FailureMessage,
	}
}

// ChargeStatusOf maps Stripe's charge status onto ours.
func ChargeStatusOf(ch *stripe.Charge) enums.ChargeStatus {
	switch ch.Status {
	case stripe.ChargeStatusSucceeded:
		return enums.ChargeStatusSucceeded
	case stripe.ChargeStatusPending:
		return enums.ChargeStatusPending
	default:
		return enums.ChargeStatusFailed
	}
}
