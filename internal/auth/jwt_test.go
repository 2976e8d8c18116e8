package auth

import (
	"testing"
	"time"
)

func newSigner(t *testing.T, ttl time.Duration) *TokenSigner {
	t.Helper()
	seed, err := GenerateSeed()
	if err != nil {
		t.Fatal(err)
	}
	s, err := SignerFromSeed(seed, "test-issuer", ttl)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestTokenRoundTrip(t *testing.T) {
	s := newSigner(t, time.Minute)
	token, exp, err := s.IssueToken("session-123")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatal("expiry not in the future")
	}
	claims, err := s.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.SessionID != "session-123" {
		t.Fatalf("sub = %q", claims.SessionID)
	}
	if claims.TokenID == "" {
		t.Fatal("missing jti")
	}
}

func TestTokenRejectedByOtherSigner(t *testing.T) {
	a := newSigner(t, time.Minute)
	b := newSigner(t, time.Minute)
	token, _, err := a.IssueToken("s")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.ParseAndValidate(token); err == nil {
		t.Fatal("foreign signature accepted")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	s := newSigner(t, -time.Minute)
	token, _, err := s.IssueToken("s")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ParseAndValidate(token); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestSignerSurvivesRestart(t *testing.T) {
	seed, err := GenerateSeed()
	if err != nil {
		t.Fatal(err)
	}
	a, err := SignerFromSeed(seed, "iss", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	token, _, err := a.IssueToken("s")
	if err != nil {
		t.Fatal(err)
	}
	b, err := SignerFromSeed(seed, "iss", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.ParseAndValidate(token); err != nil {
		t.Fatalf("token did not survive signer rebuild: %v", err)
	}
}
