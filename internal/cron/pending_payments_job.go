package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/stripe"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const (
	defaultReconcileAfter  = 10 * time.Minute
	defaultReconcileWindow = 24 * time.Hour
	defaultReconcileBatch  = 50
	defaultReplayTimeout   = 15 * time.Second

	windowExpiredReason = "payment not confirmed within the reconcile window"
)

// PendingPaymentsJobParams configure the payment reconciliation job.
type PendingPaymentsJobParams struct {
	Logger            *logger.Logger
	Orders            pendingOrderReader
	Settler           chargeSettler
	Payments          stripe.Charger
	ChargeDescription string
	ReconcileAfter    time.Duration
	ReconcileWindow   time.Duration
	BatchSize         int
	ReplayTimeout     time.Duration
}

type pendingOrderReader interface {
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type chargeSettler interface {
	SettleCharge(ctx context.Context, orderID uuid.UUID, outcome orders.ChargeOutcome) (*models.Order, error)
}

// NewPendingPaymentsJob builds the job that settles orders left pending by a
// crash or an asynchronous charge.
func NewPendingPaymentsJob(params PendingPaymentsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("pending orders reader required")
	}
	if params.Settler == nil {
		return nil, fmt.Errorf("order settler required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	job := &pendingPaymentsJob{
		logg:        params.Logger,
		orders:      params.Orders,
		settler:     params.Settler,
		payments:    params.Payments,
		description: params.ChargeDescription,
		after:       params.ReconcileAfter,
		window:      params.ReconcileWindow,
		batch:       params.BatchSize,
		timeout:     params.ReplayTimeout,
		now:         time.Now,
	}
	if job.after <= 0 {
		job.after = defaultReconcileAfter
	}
	if job.window <= 0 {
		job.window = defaultReconcileWindow
	}
	if job.batch <= 0 {
		job.batch = defaultReconcileBatch
	}
	if job.timeout <= 0 {
		job.timeout = defaultReplayTimeout
	}
	return job, nil
}

type pendingPaymentsJob struct {
	logg        *logger.Logger
	orders      pendingOrderReader
	settler     chargeSettler
	payments    stripe.Charger
	description string
	after       time.Duration
	window      time.Duration
	batch       int
	timeout     time.Duration
	now         func() time.Time
}

func (j *pendingPaymentsJob) Name() string { return "pending-payments" }

func (j *pendingPaymentsJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	pending, err := j.orders.FindPendingBefore(ctx, now.Add(-j.after), j.batch)
	if err != nil {
		return fmt.Errorf("query pending orders: %w", err)
	}

	var errs error
	settled, expired, skipped := 0, 0, 0
	for _, order := range pending {
		orderCtx := j.logg.WithOrderID(ctx, order.ID.String())
		if now.Sub(order.CreatedAt) > j.window {
			if err := j.settle(orderCtx, order, orders.ChargeOutcome{
				Status:        enums.OrderStatusFailed,
				FailureReason: windowExpiredReason,
				At:            now,
			}); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			expired++
			continue
		}

		outcome, ok, err := j.replay(orderCtx, order, now)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !ok {
			skipped++
			continue
		}
		if err := j.settle(orderCtx, order, outcome); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		settled++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"count":   len(pending),
		"settled": settled,
		"expired": expired,
		"skipped": skipped,
	})
	j.logg.Info(logCtx, "pending payments loop complete")
	return errs
}

// replay re-sends the original charge under the order's idempotency key so
// the gateway answers with the first outcome. ok is false while the charge
// is still pending.
func (j *pendingPaymentsJob) replay(ctx context.Context, order models.Order, now time.Time) (orders.ChargeOutcome, bool, error) {
	replayCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	confirmation, err := j.payments.Charge(replayCtx, stripe.ChargeRequest{
		AmountCents:    order.AmountCents,
		Currency:       order.Currency,
		Description:    j.description,
		Source:         order.PaymentSource,
		Metadata:       map[string]string{stripe.MetadataOrderID: order.ID.String()},
		IdempotencyKey: order.ID.String(),
	})
	if err != nil {
		if stripe.Definitive(err) {
			return orders.ChargeOutcome{Status: enums.OrderStatusFailed, FailureReason: err.Error(), At: now}, true, nil
		}
		return orders.ChargeOutcome{}, false, fmt.Errorf("replay charge for order %s: %w", order.ID, err)
	}
	if confirmation == nil {
		return orders.ChargeOutcome{}, false, fmt.Errorf("replay charge for order %s: empty confirmation", order.ID)
	}

	switch confirmation.Status {
	case enums.ChargeStatusSucceeded:
		return orders.ChargeOutcome{Status: enums.OrderStatusPaid, ChargeID: confirmation.ChargeID, At: now}, true, nil
	case enums.ChargeStatusFailed:
		reason := confirmation.FailureMessage
		if reason == "" {
			reason = "charge failed"
		}
		return orders.ChargeOutcome{
			Status:        enums.OrderStatusFailed,
			ChargeID:      confirmation.ChargeID,
			FailureReason: reason,
			At:            now,
		}, true, nil
	default:
		j.logg.Info(ctx, "charge still pending at gateway")
		return orders.ChargeOutcome{}, false, nil
	}
}

func (j *pendingPaymentsJob) settle(ctx context.Context, order models.Order, outcome orders.ChargeOutcome) error {
	if _, err := j.settler.SettleCharge(ctx, order.ID, outcome); err != nil {
		return fmt.Errorf("settle order %s as %s: %w", order.ID, outcome.Status, err)
	}
	return nil
}
