package orders

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service exposes owner-scoped order reads and payment settlement.
type Service interface {
	GetForOwner(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)
	ListForOwner(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	SettleCharge(ctx context.Context, orderID uuid.UUID, outcome ChargeOutcome) (*models.Order, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds the orders service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) GetForOwner(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	return order, nil
}

func (s *service) ListForOwner(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListByOwner(ctx, userID, ListParams{Limit: params.Limit, Cursor: cursor})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list orders")
	}

	list := &OrderList{Orders: make([]OrderDTO, 0, len(rows))}
	for _, row := range rows {
		list.Orders = append(list.Orders, ToDTO(row))
	}
	if next != nil {
		list.NextCursor = pagination.EncodeCursor(*next)
	}
	return list, nil
}

// SettleCharge applies a gateway outcome. Only pending orders move; replaying
// the outcome an order already holds is a no-op.
func (s *service) SettleCharge(ctx context.Context, orderID uuid.UUID, outcome ChargeOutcome) (*models.Order, error) {
	if !outcome.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge outcome must be paid or failed")
	}
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == outcome.Status {
		return order, nil
	}
	if !order.Status.CanTransitionTo(outcome.Status) {
		return nil, transitionError(order.Status, outcome.Status)
	}

	at := outcome.At
	if at.IsZero() {
		at = s.now().UTC()
	}

	var updated bool
	switch outcome.Status {
	case enums.OrderStatusPaid:
		updated, err = s.repo.MarkPaid(ctx, orderID, outcome.ChargeID, at)
	case enums.OrderStatusFailed:
		var chargeID *string
		if outcome.ChargeID != "" {
			chargeID = &outcome.ChargeID
		}
		updated, err = s.repo.MarkFailed(ctx, orderID, outcome.FailureReason, chargeID)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "settle order")
	}

	current, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !updated && current.Status != outcome.Status {
		return nil, transitionError(current.Status, outcome.Status)
	}
	return current, nil
}

func (s *service) load(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load order")
	}
	return order, nil
}

func transitionError(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot move from "+from.String()+" to "+to.String()).
		WithDetails(map[string]any{"from": from, "to": to})
}
