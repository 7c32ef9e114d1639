package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccountToken("acc-1", "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccountToken failed: %v", err)
	}

	accountID, err := ParseAccountToken(token, "secret")
	if err != nil {
		t.Fatalf("ParseAccountToken failed: %v", err)
	}
	if accountID != "acc-1" {
		t.Fatalf("got account %q, want acc-1", accountID)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := GenerateAccountToken("acc-1", "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccountToken failed: %v", err)
	}
	if _, err := ParseAccountToken(token, "other-secret"); err == nil {
		t.Fatal("expected validation failure with wrong secret")
	}
}

func TestTokenExpired(t *testing.T) {
	token, err := GenerateAccountToken("acc-1", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccountToken failed: %v", err)
	}
	if _, err := ParseAccountToken(token, "secret"); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestTokenGarbage(t *testing.T) {
	if _, err := ParseAccountToken("not-a-token", "secret"); err == nil {
		t.Fatal("expected parse failure")
	}
}
