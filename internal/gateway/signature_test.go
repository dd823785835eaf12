package gateway_test

import (
	"errors"
	"testing"
	"time"

	"github.com/robertarktes/marketplace-checkout/internal/gateway"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	now := time.Now()

	header := gateway.SignHeader(secret, body, now)
	if err := gateway.VerifySignature(secret, body, header, now); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	body := []byte(`{}`)
	now := time.Now()

	header := gateway.SignHeader("whsec_other", body, now)
	err := gateway.VerifySignature("whsec_test", body, header, now)
	if !errors.Is(err, gateway.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestVerifySignature_TamperedBody(t *testing.T) {
	secret := "whsec_test"
	now := time.Now()

	header := gateway.SignHeader(secret, []byte(`{"amount_total":10000}`), now)
	err := gateway.VerifySignature(secret, []byte(`{"amount_total":99999}`), header, now)
	if !errors.Is(err, gateway.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestVerifySignature_StaleTimestamp(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{}`)
	signedAt := time.Now().Add(-time.Hour)

	header := gateway.SignHeader(secret, body, signedAt)
	err := gateway.VerifySignature(secret, body, header, time.Now())
	if !errors.Is(err, gateway.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid for stale timestamp, got %v", err)
	}
}

func TestVerifySignature_MalformedHeader(t *testing.T) {
	for _, header := range []string{"", "garbage", "t=abc,v1=zz", "v1=deadbeef"} {
		err := gateway.VerifySignature("whsec_test", []byte(`{}`), header, time.Now())
		if !errors.Is(err, gateway.ErrSignatureInvalid) {
			t.Errorf("header %q: expected ErrSignatureInvalid, got %v", header, err)
		}
	}
}
