package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
)

type orderSettler interface {
	SettleCharge(ctx context.Context, orderID uuid.UUID, outcome orders.ChargeOutcome) (*models.Order, error)
}

// Service applies asynchronous charge outcomes to orders.
type Service struct {
	orders orderSettler
}

// NewService builds the Stripe webhook service.
func NewService(settler orderSettler) (*Service, error) {
	if settler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order settler required")
	}
	return &Service{orders: settler}, nil
}

// HandleEvent settles the order referenced by a charge event. Unrelated
// event types are acknowledged and ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	var status enums.OrderStatus
	switch event.Type {
	case stripe.EventTypeChargeSucceeded:
		status = enums.OrderStatusPaid
	case stripe.EventTypeChargeFailed:
		status = enums.OrderStatusFailed
	default:
		return nil
	}

	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
	}
	rawOrderID := charge.Metadata[pkgstripe.MetadataOrderID]
	if rawOrderID == "" {
		// Charges created outside checkout carry no order.
		return nil
	}
	orderID, err := uuid.Parse(rawOrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order_id metadata")
	}

	outcome := orders.ChargeOutcome{
		Status:   status,
		ChargeID: charge.ID,
		At:       eventTime(event),
	}
	if status == enums.OrderStatusFailed {
		outcome.FailureReason = charge.FailureMessage
		if outcome.FailureReason == "" {
			outcome.FailureReason = "charge failed"
		}
	}

	if _, err := s.orders.SettleCharge(ctx, orderID, outcome); err != nil {
		// A late event for an already settled order is acknowledged so
		// Stripe stops redelivering it.
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			return nil
		}
		return err
	}
	return nil
}

func eventTime(event *stripe.Event) time.Time {
	if event.Created == 0 {
		return time.Now().UTC()
	}
	return time.Unix(event.Created, 0).UTC()
}
