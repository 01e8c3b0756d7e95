package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func validRequest() ChargeRequest {
	return ChargeRequest{
		AmountCents:    2500,
		Currency:       enums.CurrencyUSD,
		Description:    "Demo Order",
		Source:         "tok_visa",
		Metadata:       map[string]string{MetadataOrderID: "order-1"},
		IdempotencyKey: "order-1",
	}
}

func TestChargeBuildsStripeParams(t *testing.T) {
	var captured *stripe.ChargeParams
	charges := &Charges{create: func(params *stripe.ChargeParams) (*stripe.Charge, error) {
		captured = params
		return &stripe.Charge{ID: "ch_1", Amount: 2500, Status: stripe.ChargeStatusSucceeded}, nil
	}}

	ctx := context.Background()
	conf, err := charges.Charge(ctx, validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conf.ChargeID != "ch_1" || conf.Status != enums.ChargeStatusSucceeded || conf.AmountCents != 2500 {
		t.Fatalf("unexpected confirmation %+v", conf)
	}

	if captured == nil {
		t.Fatal("expected stripe to be called")
	}
	if *captured.Amount != 2500 || *captured.Currency != "usd" || *captured.Description != "Demo Order" {
		t.Fatalf("unexpected params amount=%d currency=%s description=%s", *captured.Amount, *captured.Currency, *captured.Description)
	}
	if captured.Metadata[MetadataOrderID] != "order-1" {
		t.Fatalf("expected order id metadata, got %v", captured.Metadata)
	}
	if captured.IdempotencyKey == nil || *captured.IdempotencyKey != "order-1" {
		t.Fatal("expected idempotency key to be the order id")
	}
	if captured.Context != ctx {
		t.Fatal("expected request context to be propagated")
	}
}

func TestChargeRejectsInvalidRequests(t *testing.T) {
	called := false
	charges := &Charges{create: func(*stripe.ChargeParams) (*stripe.Charge, error) {
		called = true
		return nil, nil
	}}

	cases := map[string]func(*ChargeRequest){
		"zero amount":      func(r *ChargeRequest) { r.AmountCents = 0 },
		"unknown currency": func(r *ChargeRequest) { r.Currency = "eur" },
		"missing source":   func(r *ChargeRequest) { r.Source = " " },
		"missing order id": func(r *ChargeRequest) { r.Metadata = map[string]string{} },
	}
	for name, mutate := range cases {
		req := validRequest()
		mutate(&req)
		_, err := charges.Charge(context.Background(), req)
		if !errors.Is(err, ErrInvalidCharge) || !Definitive(err) {
			t.Fatalf("%s: expected invalid charge error, got %v", name, err)
		}
	}
	if called {
		t.Fatal("stripe should not be called for invalid requests")
	}
}

func TestChargeSurfacesDecline(t *testing.T) {
	charges := &Charges{create: func(*stripe.ChargeParams) (*stripe.Charge, error) {
		return nil, &stripe.Error{Code: stripe.ErrorCodeCardDeclined, Msg: "Your card was declined."}
	}}
	_, err := charges.Charge(context.Background(), validRequest())
	if !errors.Is(err, ErrCardDeclined) || !strings.Contains(err.Error(), "Your card was declined.") {
		t.Fatalf("expected decline error, got %v", err)
	}
}

func TestChargeWrapsTransportErrors(t *testing.T) {
	boom := errors.New("connection reset")
	charges := &Charges{create: func(*stripe.ChargeParams) (*stripe.Charge, error) {
		return nil, boom
	}}
	_, err := charges.Charge(context.Background(), validRequest())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
	if Definitive(err) {
		t.Fatal("transport error must not be treated as a final answer")
	}
}

func TestChargeCardErrorsAreDeclines(t *testing.T) {
	charges := &Charges{create: func(*stripe.ChargeParams) (*stripe.Charge, error) {
		return nil, &stripe.Error{Type: stripe.ErrorTypeCard, Code: stripe.ErrorCodeExpiredCard, Msg: "Your card has expired."}
	}}
	_, err := charges.Charge(context.Background(), validRequest())
	if !errors.Is(err, ErrCardDeclined) || !Definitive(err) {
		t.Fatalf("expected decline error, got %v", err)
	}
}

func TestDefinitive(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"declined":          {fmt.Errorf("%w: no funds", ErrCardDeclined), true},
		"invalid":           {fmt.Errorf("%w: missing source", ErrInvalidCharge), true},
		"deadline exceeded": {fmt.Errorf("create charge: %w", context.DeadlineExceeded), false},
		"server error":      {&stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: 500}, false},
		"nil":               {nil, false},
	}
	for name, tc := range cases {
		if got := Definitive(tc.err); got != tc.want {
			t.Fatalf("%s: Definitive = %v, want %v", name, got, tc.want)
		}
	}
}

func TestChargeStatusOf(t *testing.T) {
	cases := map[stripe.ChargeStatus]enums.ChargeStatus{
		stripe.ChargeStatusSucceeded: enums.ChargeStatusSucceeded,
		stripe.ChargeStatusPending:   enums.ChargeStatusPending,
		stripe.ChargeStatusFailed:    enums.ChargeStatusFailed,
	}
	for in, want := range cases {
		if got := ChargeStatusOf(&stripe.Charge{Status: in}); got != want {
			t.Fatalf("%s: expected %s got %s", in, want, got)
		}
	}
}
