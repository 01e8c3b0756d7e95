package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

const (
	defaultProcessingTTL = 2 * time.Minute
	doneMarker           = "done"
	processingPrefix     = "processing:"
)

// ClaimState tells the webhook handler what to do with a delivery.
type ClaimState int

const (
	// ClaimAcquired means this delivery owns the event and must process it.
	ClaimAcquired ClaimState = iota
	// ClaimDuplicate means the event was already processed.
	ClaimDuplicate
	// ClaimInFlight means another delivery is processing the event now.
	ClaimInFlight
)

// Claim is the ownership handle for one delivery of an event.
type Claim struct {
	EventID string
	State   ClaimState
	token   string
}

// EventClaims deduplicates Stripe deliveries in Redis. An event key holds
// "processing:<token>" while a delivery works on it and "done" afterwards.
type EventClaims struct {
	store         pkgredis.IdempotencyStore
	scope         string
	doneTTL       time.Duration
	processingTTL time.Duration
}

// NewEventClaims builds the ledger. doneTTL bounds how long a processed event
// is remembered and should exceed Stripe's redelivery window.
func NewEventClaims(store pkgredis.IdempotencyStore, doneTTL time.Duration, scope string) (*EventClaims, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if doneTTL < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if strings.TrimSpace(scope) == "" {
		return nil, errors.New("scope is required")
	}
	return &EventClaims{
		store:         store,
		scope:         scope,
		doneTTL:       doneTTL,
		processingTTL: defaultProcessingTTL,
	}, nil
}

// Claim tries to take ownership of eventID.
func (c *EventClaims) Claim(ctx context.Context, eventID string) (Claim, error) {
	if eventID == "" {
		return Claim{}, errors.New("event id is required")
	}
	key := c.key(eventID)
	token := processingPrefix + uuid.NewString()
	acquired, err := c.store.SetNX(ctx, key, token, c.processingTTL)
	if err != nil {
		return Claim{}, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	if acquired {
		return Claim{EventID: eventID, State: ClaimAcquired, token: token}, nil
	}

	current, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// the other claim expired between the two calls
		return Claim{EventID: eventID, State: ClaimInFlight}, nil
	case err != nil:
		return Claim{}, fmt.Errorf("read event claim %s: %w", eventID, err)
	case current == doneMarker:
		return Claim{EventID: eventID, State: ClaimDuplicate}, nil
	default:
		return Claim{EventID: eventID, State: ClaimInFlight}, nil
	}
}

// Complete marks a claimed event as processed.
func (c *EventClaims) Complete(ctx context.Context, claim Claim) error {
	if claim.State != ClaimAcquired {
		return nil
	}
	if err := c.store.Set(ctx, c.key(claim.EventID), doneMarker, c.doneTTL); err != nil {
		return fmt.Errorf("complete event %s: %w", claim.EventID, err)
	}
	return nil
}

// Release gives a claimed event back so a redelivery can process it.
func (c *EventClaims) Release(ctx context.Context, claim Claim) error {
	if claim.State != ClaimAcquired {
		return nil
	}
	if _, err := c.store.DeleteIfValue(ctx, c.key(claim.EventID), claim.token); err != nil {
		return fmt.Errorf("release event %s: %w", claim.EventID, err)
	}
	return nil
}

func (c *EventClaims) key(eventID string) string {
	return c.store.IdempotencyKey(c.scope, eventID)
}
