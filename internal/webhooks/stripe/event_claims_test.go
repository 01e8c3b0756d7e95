package stripewebhook

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

func newClaims(t *testing.T) (*EventClaims, *pkgredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	client := pkgredis.FromRedis(raw)
	claims, err := NewEventClaims(client, time.Hour, "stripe-webhook")
	require.NoError(t, err)
	return claims, client, mr
}

func TestEventClaimsLifecycle(t *testing.T) {
	claims, client, mr := newClaims(t)
	ctx := context.Background()

	first, err := claims.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, ClaimAcquired, first.State)

	concurrent, err := claims.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, ClaimInFlight, concurrent.State)

	require.NoError(t, claims.Complete(ctx, first))
	key := client.IdempotencyKey("stripe-webhook", "evt_1")
	stored, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "done", stored)
	assert.Equal(t, time.Hour, mr.TTL(key))

	again, err := claims.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, ClaimDuplicate, again.State)

	mr.FastForward(2 * time.Hour)
	afterExpiry, err := claims.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, ClaimAcquired, afterExpiry.State)
}

func TestEventClaimsReleaseAllowsRedelivery(t *testing.T) {
	claims, _, _ := newClaims(t)
	ctx := context.Background()

	claim, err := claims.Claim(ctx, "evt_2")
	require.NoError(t, err)
	require.NoError(t, claims.Release(ctx, claim))

	retry, err := claims.Claim(ctx, "evt_2")
	require.NoError(t, err)
	assert.Equal(t, ClaimAcquired, retry.State)
}

func TestEventClaimsStaleReleaseKeepsNewOwner(t *testing.T) {
	claims, _, mr := newClaims(t)
	ctx := context.Background()

	stale, err := claims.Claim(ctx, "evt_3")
	require.NoError(t, err)
	mr.FastForward(defaultProcessingTTL + time.Second)

	current, err := claims.Claim(ctx, "evt_3")
	require.NoError(t, err)
	require.Equal(t, ClaimAcquired, current.State)

	require.NoError(t, claims.Release(ctx, stale))
	blocked, err := claims.Claim(ctx, "evt_3")
	require.NoError(t, err)
	assert.Equal(t, ClaimInFlight, blocked.State)
}

func TestEventClaimsIgnoresUnownedClaims(t *testing.T) {
	claims, _, _ := newClaims(t)
	ctx := context.Background()

	assert.NoError(t, claims.Complete(ctx, Claim{EventID: "evt_4", State: ClaimDuplicate}))
	assert.NoError(t, claims.Release(ctx, Claim{EventID: "evt_4", State: ClaimInFlight}))

	claim, err := claims.Claim(ctx, "evt_4")
	require.NoError(t, err)
	assert.Equal(t, ClaimAcquired, claim.State)
}

func TestNewEventClaimsValidates(t *testing.T) {
	_, err := NewEventClaims(nil, time.Hour, "stripe")
	assert.Error(t, err)

	_, client, _ := newClaims(t)
	_, err = NewEventClaims(client, time.Hour, " ")
	assert.Error(t, err)
	_, err = NewEventClaims(client, -time.Second, "stripe")
	assert.Error(t, err)

	claims, err := NewEventClaims(client, time.Hour, "stripe")
	require.NoError(t, err)
	_, err = claims.Claim(context.Background(), "")
	assert.Error(t, err)
}
