package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

const testSigningSecret = "whsec_test"

func newGuard(t *testing.T) *stripewebhook.EventClaims {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	claims, err := stripewebhook.NewEventClaims(pkgredis.FromRedis(raw), time.Minute, "stripe-webhook")
	if err != nil {
		t.Fatalf("claims setup: %v", err)
	}
	return claims
}

func TestStripeWebhook_SuccessAndIdempotent(t *testing.T) {
	payload, header := buildSignedChargeEvent(t, stripe.EventTypeChargeSucceeded, uuid.New())
	service := &fakeStripeWebhookService{}
	handler := StripeWebhook(service, &fakeSigningClient{secret: testSigningSecret}, newGuard(t), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req2.Header.Set("Stripe-Signature", header)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d (%s)", rec2.Code, rec2.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected duplicate not processed, call count %d", service.calls)
	}
}

func TestStripeWebhook_InFlightDeliveryConflicts(t *testing.T) {
	payload, header := buildSignedChargeEvent(t, stripe.EventTypeChargeSucceeded, uuid.New())
	guard := newGuard(t)
	service := &fakeStripeWebhookService{}
	handler := StripeWebhook(service, &fakeSigningClient{secret: testSigningSecret}, guard, nil)

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if _, err := guard.Claim(context.Background(), event.ID); err != nil {
		t.Fatalf("pre-claim: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while another delivery holds the event, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not run for an in-flight event")
	}
}

func TestStripeWebhook_InvalidSignature(t *testing.T) {
	payload, _ := buildSignedChargeEvent(t, stripe.EventTypeChargeSucceeded, uuid.New())
	service := &fakeStripeWebhookService{}
	handler := StripeWebhook(service, &fakeSigningClient{secret: testSigningSecret}, newGuard(t), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=invalid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
}

func TestStripeWebhook_MissingSignature(t *testing.T) {
	payload, _ := buildSignedChargeEvent(t, stripe.EventTypeChargeSucceeded, uuid.New())
	handler := StripeWebhook(&fakeStripeWebhookService{}, &fakeSigningClient{secret: testSigningSecret}, newGuard(t), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without signature, got %d", rec.Code)
	}
}

func TestStripeWebhook_FailedHandlingAllowsRedelivery(t *testing.T) {
	payload, header := buildSignedChargeEvent(t, stripe.EventTypeChargeSucceeded, uuid.New())
	service := &fakeStripeWebhookService{err: errors.New("db down")}
	handler := StripeWebhook(service, &fakeSigningClient{secret: testSigningSecret}, newGuard(t), nil)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
		req.Header.Set("Stripe-Signature", header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("attempt %d: expected 500, got %d", i, rec.Code)
		}
	}
	if service.calls != 2 {
		t.Fatalf("expected the event to be retried, got %d calls", service.calls)
	}
}

func TestStripeWebhook_SettlesOrderFromChargeEvent(t *testing.T) {
	orderID := uuid.New()
	payload, header := buildSignedChargeEvent(t, stripe.EventTypeChargeFailed, orderID)
	settler := &recordingSettler{}
	svc, err := stripewebhook.NewService(settler)
	if err != nil {
		t.Fatalf("service setup: %v", err)
	}
	handler := StripeWebhook(svc, &fakeSigningClient{secret: testSigningSecret}, newGuard(t), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if settler.orderID != orderID {
		t.Fatalf("expected order %s settled, got %s", orderID, settler.orderID)
	}
	if settler.outcome.Status != enums.OrderStatusFailed {
		t.Fatalf("expected failed outcome, got %s", settler.outcome.Status)
	}
	if settler.outcome.FailureReason != "Your card was declined." {
		t.Fatalf("unexpected failure reason %q", settler.outcome.FailureReason)
	}
}

func buildSignedChargeEvent(t *testing.T, eventType stripe.EventType, orderID uuid.UUID) ([]byte, string) {
	t.Helper()
	charge := &stripe.Charge{
		ID:       "ch_" + uuid.NewString(),
		Amount:   2500,
		Currency: stripe.CurrencyUSD,
		Metadata: map[string]string{pkgstripe.MetadataOrderID: orderID.String()},
	}
	if eventType == stripe.EventTypeChargeFailed {
		charge.Status = stripe.ChargeStatusFailed
		charge.FailureMessage = "Your card was declined."
	} else {
		charge.Status = stripe.ChargeStatusSucceeded
	}
	rawCharge, err := json.Marshal(charge)
	if err != nil {
		t.Fatalf("marshal charge: %v", err)
	}
	event := &stripe.Event{
		ID:         "evt_" + uuid.NewString(),
		Type:       eventType,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Created:    time.Now().Unix(),
		Data: &stripe.EventData{
			Raw: rawCharge,
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	header := buildStripeSignatureHeader(payload, testSigningSecret, time.Now().Unix())
	return payload, header
}

func buildStripeSignatureHeader(payload []byte, secret string, ts int64) string {
	signedPayload := fmt.Sprintf("%d.%s", ts, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type fakeStripeWebhookService struct {
	calls int
	err   error
}

func (f *fakeStripeWebhookService) HandleEvent(ctx context.Context, event *stripe.Event) error {
	f.calls++
	return f.err
}

type fakeSigningClient struct {
	secret string
}

func (c *fakeSigningClient) SigningSecret() string {
	return c.secret
}

type recordingSettler struct {
	orderID uuid.UUID
	outcome orders.ChargeOutcome
}

func (r *recordingSettler) SettleCharge(_ context.Context, orderID uuid.UUID, outcome orders.ChargeOutcome) (*models.Order, error) {
	r.orderID = orderID
	r.outcome = outcome
	return &models.Order{ID: orderID, Status: outcome.Status}, nil
}

func TestStripeWebhook_RejectsOversizedPayload(t *testing.T) {
	service := &fakeStripeWebhookService{}
	handler := StripeWebhook(service, &fakeSigningClient{secret: testSigningSecret}, newGuard(t), nil)

	payload := bytes.Repeat([]byte("x"), maxPayloadBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", buildStripeSignatureHeader(payload, testSigningSecret, time.Now().Unix()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized payload, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatal("service should not be invoked for oversized payloads")
	}
}

func TestStripeWebhook_RequiresDependencies(t *testing.T) {
	handler := StripeWebhook(&fakeStripeWebhookService{}, nil, newGuard(t), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without signer, got %d", rec.Code)
	}
}
