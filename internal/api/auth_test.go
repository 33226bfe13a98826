package api

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthenticatorRoundTrip(t *testing.T) {
	t.Parallel()

	a := NewAuthenticator("s3cret", "textcat", time.Minute)
	tok, exp, err := a.Issue("alice", 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) > time.Minute || time.Until(exp) < 50*time.Second {
		t.Fatalf("exp = %v", exp)
	}
	sub, err := a.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if sub != "alice" {
		t.Fatalf("subject = %q", sub)
	}
	if _, _, err := a.Issue("  ", 0); err == nil {
		t.Fatalf("expected error for empty subject")
	}
}

func TestAuthenticatorRejects(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewAuthenticator("s3cret", "textcat", time.Minute)
	a.now = func() time.Time { return now }

	expired, _, err := a.Issue("alice", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	otherIssuer := NewAuthenticator("s3cret", "someone-else", time.Minute)
	otherIssuer.now = a.now
	foreign, _, err := otherIssuer.Issue("alice", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "textcat",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: "alice",
		Issuer:  "textcat",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	a.now = func() time.Time { return now.Add(2 * time.Minute) }
	for name, tok := range map[string]string{
		"expired":      expired,
		"issuer":       foreign,
		"no subject":   noSub,
		"alg none":     unsigned,
		"not a token":  "abc.def.ghi",
		"empty string": "",
	} {
		if _, err := a.Verify(tok); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: err = %v, want ErrUnauthorized", name, err)
		}
	}
}
