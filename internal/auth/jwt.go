// Package auth issues and validates the short-lived bearer tokens the
// daemon hands out after a successful unlock. A token carries the session
// id and nothing about which mode the unlock resolved to; master and decoy
// tokens are indistinguishable on the wire.
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	SessionID string `json:"sub"`
	TokenID   string `json:"jti"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

type TokenSigner struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	iss  string
	ttl  time.Duration
}

func NewTokenSigner(priv ed25519.PrivateKey, iss string, ttl time.Duration) *TokenSigner {
	return &TokenSigner{priv: priv, pub: priv.Public().(ed25519.PublicKey), iss: iss, ttl: ttl}
}

// SignerFromSeed rebuilds a deterministic signer from a stored 32-byte seed
// so tokens survive a daemon restart.
func SignerFromSeed(seed []byte, iss string, ttl time.Duration) (*TokenSigner, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.New("auth: bad signing seed size")
	}
	return NewTokenSigner(ed25519.NewKeyFromSeed(seed), iss, ttl), nil
}

func GenerateSeed() ([]byte, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	return seed, nil
}

func (s *TokenSigner) IssueToken(sessionID string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.ttl)
	claims := jwt.MapClaims{
		"iss": s.iss,
		"sub": sessionID,
		"iat": now.Unix(),
		"exp": exp.Unix(),
		"jti": randomJTI(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	ss, err := token.SignedString(s.priv)
	return ss, exp, err
}

func (s *TokenSigner) ParseAndValidate(tokenStr string) (*Claims, error) {
	keyFunc := func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodEdDSA {
			return nil, errors.New("unexpected signing method")
		}
		return s.pub, nil
	}

	tok, err := jwt.ParseWithClaims(tokenStr, jwt.MapClaims{}, keyFunc, jwt.WithIssuer(s.iss))
	if err != nil || !tok.Valid {
		return nil, errors.New("invalid token")
	}
	std := tok.Claims.(jwt.MapClaims)

	getString := func(k string) string {
		if v, ok := std[k].(string); ok {
			return v
		}
		return ""
	}
	getInt64 := func(k string) int64 {
		switch v := std[k].(type) {
		case float64:
			return int64(v)
		case int64:
			return v
		default:
			return 0
		}
	}
	return &Claims{
		SessionID: getString("sub"),
		TokenID:   getString("jti"),
		IssuedAt:  getInt64("iat"),
		ExpiresAt: getInt64("exp"),
	}, nil
}

func randomJTI() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
