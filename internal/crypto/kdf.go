package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize = 32
	KeySize  = 32

	// MinIterations is the floor for PBKDF2 cost. Records created with a
	// higher count stay valid; the count travels with the record.
	MinIterations = 100_000

	DefaultIterations = 210_000
)

var (
	ErrSaltSize       = errors.New("crypto: salt must be 32 bytes")
	ErrIterationFloor = errors.New("crypto: iteration count below minimum")
)

type KDFParams struct {
	Salt       []byte
	Iterations int
}

// NewKDFParams returns params with a fresh random salt and the default cost.
func NewKDFParams() (KDFParams, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return KDFParams{}, err
	}
	return KDFParams{Salt: salt, Iterations: DefaultIterations}, nil
}

// Derive stretches a password into a 32-byte key using PBKDF2-HMAC-SHA256.
// Deterministic for identical inputs; cost scales linearly with iterations.
func Derive(password []byte, p KDFParams) ([]byte, error) {
	if len(p.Salt) != SaltSize {
		return nil, ErrSaltSize
	}
	if p.Iterations < MinIterations {
		return nil, ErrIterationFloor
	}
	return pbkdf2.Key(password, p.Salt, p.Iterations, KeySize, sha256.New), nil
}
