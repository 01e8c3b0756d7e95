package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultChargeDescription = "Demo Order"
	defaultPaymentTimeout    = 15 * time.Second
)

type cartManager interface {
	Reconcile(ctx context.Context, userID uuid.UUID) (*cart.Resolution, error)
	RemovePurchased(ctx context.Context, userID uuid.UUID, purchased types.Cart) error
}

type orderStore interface {
	Create(ctx context.Context, order *models.Order) error
	MarkPaid(ctx context.Context, id uuid.UUID, chargeID string, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, chargeID *string) (bool, error)
	AttachCharge(ctx context.Context, id uuid.UUID, chargeID string) error
}

type outcomeRecorder interface {
	IncOutcome(state string)
	ObservePayment(status string, duration time.Duration)
}

// Service runs the checkout flow for a user's cart.
type Service interface {
	Preview(ctx context.Context, userID uuid.UUID) (*cart.View, error)
	Checkout(ctx context.Context, input Input) (*Result, error)
}

// Input is a checkout request for one user.
type Input struct {
	UserID       uuid.UUID
	PaymentToken string
}

// Result reports where a checkout ended and the order it produced.
type Result struct {
	Order        models.Order
	State        enums.CheckoutState
	Total        decimal.Decimal
	ChargeStatus enums.ChargeStatus
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Cart              cartManager
	Orders            orderStore
	Payments          stripe.Charger
	Metrics           outcomeRecorder
	Logger            *logger.Logger
	ChargeDescription string
	PaymentTimeout    time.Duration
	Now               func() time.Time
}

type service struct {
	cart        cartManager
	orders      orderStore
	payments    stripe.Charger
	metrics     outcomeRecorder
	logg        *logger.Logger
	description string
	timeout     time.Duration
	now         func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart manager required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order store required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	svc := &service{
		cart:        params.Cart,
		orders:      params.Orders,
		payments:    params.Payments,
		metrics:     params.Metrics,
		logg:        params.Logger,
		description: strings.TrimSpace(params.ChargeDescription),
		timeout:     params.PaymentTimeout,
		now:         params.Now,
	}
	if svc.description == "" {
		svc.description = defaultChargeDescription
	}
	if svc.timeout <= 0 {
		svc.timeout = defaultPaymentTimeout
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

func (s *service) Preview(ctx context.Context, userID uuid.UUID) (*cart.View, error) {
	res, err := s.cart.Reconcile(ctx, userID)
	if err != nil {
		return nil, err
	}
	view := cart.NewView(res)
	return &view, nil
}

// Checkout snapshots the cart into a pending order, charges it and settles
// the order with the gateway's verdict. The cart is emptied only after the
// gateway accepted the charge.
func (s *service) Checkout(ctx context.Context, input Input) (*Result, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if strings.TrimSpace(input.PaymentToken) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_token is required")
	}

	res, err := s.cart.Reconcile(ctx, input.UserID)
	if err != nil {
		s.recordOutcome(enums.CheckoutStateAborted)
		return nil, err
	}
	if res.IsEmpty() {
		s.recordOutcome(enums.CheckoutStateAborted)
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}
	state := enums.CheckoutStateCartSnapshotted

	order := buildOrder(res, input.PaymentToken)
	if err := s.orders.Create(ctx, order); err != nil {
		s.recordOutcome(enums.CheckoutStateAborted)
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "persist order")
	}
	state = enums.CheckoutStateOrderPersisted
	if s.logg != nil {
		ctx = s.logg.WithOrderID(ctx, order.ID.String())
	}

	confirmation, chargeErr := s.charge(ctx, order)
	state = enums.CheckoutStatePaymentAttempted
	if chargeErr != nil && !stripe.Definitive(chargeErr) {
		s.recordOutcome(state)
		return nil, s.unsettledPayment(ctx, order, chargeErr)
	}
	if chargeErr != nil || confirmation.Status == enums.ChargeStatusFailed {
		return nil, s.failPayment(ctx, order, confirmation, chargeErr)
	}

	switch confirmation.Status {
	case enums.ChargeStatusSucceeded:
		paidAt := s.now().UTC()
		if _, err := s.orders.MarkPaid(ctx, order.ID, confirmation.ChargeID, paidAt); err != nil {
			return nil, s.storageAfterCharge(ctx, order, err, "mark order paid")
		}
		order.Status = enums.OrderStatusPaid
		order.ChargeID = &confirmation.ChargeID
		order.PaidAt = &paidAt
	case enums.ChargeStatusPending:
		if err := s.orders.AttachCharge(ctx, order.ID, confirmation.ChargeID); err != nil {
			return nil, s.storageAfterCharge(ctx, order, err, "record pending charge")
		}
		order.ChargeID = &confirmation.ChargeID
	}

	if err := s.cart.RemovePurchased(ctx, input.UserID, res.Purchased()); err != nil {
		s.recordOutcome(state)
		return nil, s.storageAfterCharge(ctx, order, err, "clear cart")
	}
	state = enums.CheckoutStateCartCleared
	s.recordOutcome(state)

	return &Result{
		Order:        *order,
		State:        state,
		Total:        res.Total,
		ChargeStatus: confirmation.Status,
	}, nil
}

func (s *service) charge(ctx context.Context, order *models.Order) (*stripe.ChargeConfirmation, error) {
	chargeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := s.now()
	confirmation, err := s.payments.Charge(chargeCtx, stripe.ChargeRequest{
		AmountCents:    order.AmountCents,
		Currency:       order.Currency,
		Description:    s.description,
		Source:         order.PaymentSource,
		Metadata:       map[string]string{stripe.MetadataOrderID: order.ID.String()},
		IdempotencyKey: order.ID.String(),
	})
	status := "error"
	if err == nil && confirmation != nil {
		status = confirmation.Status.String()
	}
	if s.metrics != nil {
		s.metrics.ObservePayment(status, s.now().Sub(started))
	}
	if err == nil && confirmation == nil {
		err = fmt.Errorf("payment gateway returned no confirmation")
	}
	return confirmation, err
}

func (s *service) failPayment(ctx context.Context, order *models.Order, confirmation *stripe.ChargeConfirmation, chargeErr error) error {
	reason := "charge failed"
	var chargeID *string
	if chargeErr != nil {
		reason = chargeErr.Error()
	}
	if confirmation != nil {
		if confirmation.FailureMessage != "" {
			reason = confirmation.FailureMessage
		}
		if confirmation.ChargeID != "" {
			chargeID = &confirmation.ChargeID
		}
	}

	if _, err := s.orders.MarkFailed(ctx, order.ID, reason, chargeID); err != nil && s.logg != nil {
		s.logg.Error(ctx, "mark order failed after payment error", err)
	}
	s.recordOutcome(enums.CheckoutStatePaymentFailed)

	cause := chargeErr
	if cause == nil {
		cause = fmt.Errorf("charge %s: %s", enums.ChargeStatusFailed, reason)
	}
	if s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "reason", reason), "payment gateway rejected checkout")
	}
	return pkgerrors.Wrap(pkgerrors.CodePayment, cause, "payment could not be processed").
		WithDetails(map[string]any{"order_id": order.ID.String()})
}

// unsettledPayment handles a charge whose outcome is unknown. The order stays
// pending so the reconciler can replay it under the same idempotency key.
func (s *service) unsettledPayment(ctx context.Context, order *models.Order, chargeErr error) error {
	if s.logg != nil {
		s.logg.Error(ctx, "payment outcome unknown, order left pending for reconciliation", chargeErr)
	}
	return pkgerrors.Wrap(pkgerrors.CodePayment, chargeErr, "payment could not be confirmed").
		WithDetails(map[string]any{
			"order_id":     order.ID.String(),
			"order_status": enums.OrderStatusPending.String(),
		})
}

// storageAfterCharge reports a write failure that happened after the gateway
// accepted money. The order id is kept in the details for operators.
func (s *service) storageAfterCharge(ctx context.Context, order *models.Order, err error, message string) error {
	if s.logg != nil {
		s.logg.Error(ctx, message+" after successful charge", err)
	}
	return pkgerrors.Wrap(pkgerrors.CodeStorage, err, message).
		WithDetails(map[string]any{"order_id": order.ID.String()})
}

func (s *service) recordOutcome(state enums.CheckoutState) {
	if s.metrics != nil {
		s.metrics.IncOutcome(state.String())
	}
}

func buildOrder(res *cart.Resolution, paymentToken string) *models.Order {
	lines := make(types.OrderLines, 0, len(res.Lines))
	for _, line := range res.Lines {
		lines = append(lines, types.OrderLine{
			Product: types.ProductSnapshot{
				SchemaVersion: types.ProductSnapshotVersion,
				ID:            line.Product.ID,
				Title:         line.Product.Title,
				Price:         line.Product.Price,
				Description:   line.Product.Description,
				ImageURL:      line.Product.ImageURL,
			},
			Quantity: line.Quantity,
		})
	}
	return &models.Order{
		ID:            uuid.New(),
		UserID:        res.UserID,
		UserEmail:     res.Email,
		Products:      lines,
		Status:        enums.OrderStatusPending,
		Currency:      enums.CurrencyUSD,
		AmountCents:   enums.CurrencyUSD.ToMinorUnits(lines.Total()),
		PaymentSource: strings.TrimSpace(paymentToken),
	}
}
