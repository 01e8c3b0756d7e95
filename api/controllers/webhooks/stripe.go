package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/storefront-backend/api/responses"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// maxPayloadBytes matches the largest event body Stripe documents sending.
const maxPayloadBytes = 65536

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

// StripeWebhookGuard deduplicates redelivered events.
type StripeWebhookGuard interface {
	Claim(ctx context.Context, eventID string) (stripewebhook.Claim, error)
	Complete(ctx context.Context, claim stripewebhook.Claim) error
	Release(ctx context.Context, claim stripewebhook.Claim) error
}

// StripeSigner exposes the endpoint signing secret.
type StripeSigner interface {
	SigningSecret() string
}

// StripeWebhook verifies and dispatches Stripe charge events.
//
// A processed event is acknowledged without running again. A delivery that
// races one still in progress gets 409 and Stripe retries it later. When the
// handler fails the claim is dropped so the next redelivery can succeed.
func StripeWebhook(svc StripeWebhookService, signer StripeSigner, guard StripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || signer == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook not configured"))
			return
		}

		event, err := verifiedEvent(w, r, signer.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"stripe_event": event.ID, "stripe_event_type": string(event.Type)})
		}

		claim, err := guard.Claim(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stripe event"))
			return
		}
		switch claim.State {
		case stripewebhook.ClaimDuplicate:
			if logg != nil {
				logg.Info(ctx, "stripe.event.duplicate")
			}
			responses.WriteSuccess(w, nil)
			return
		case stripewebhook.ClaimInFlight:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "stripe event is being processed"))
			return
		}

		detached := context.WithoutCancel(ctx)
		if err := svc.HandleEvent(ctx, event); err != nil {
			if relErr := guard.Release(detached, claim); relErr != nil && logg != nil {
				logg.Error(ctx, "stripe.event.release_failed", relErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := guard.Complete(detached, claim); err != nil && logg != nil {
			logg.Error(ctx, "stripe.event.complete_failed", err)
		}
		if logg != nil {
			logg.Info(ctx, "stripe.event.processed")
		}
		responses.WriteSuccess(w, nil)
	}
}

// verifiedEvent reads the size-capped body and checks the Stripe-Signature
// header. Events from accounts pinned to another API version are accepted;
// only the charge fields the service reads need to match.
func verifiedEvent(w http.ResponseWriter, r *http.Request, secret string) (*stripe.Event, error) {
	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe payload too large")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	event, err := webhook.ConstructEventWithOptions(payload, sig, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify signature")
	}
	return &event, nil
}
