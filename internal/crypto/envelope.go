package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	IVSize  = aes.BlockSize // 16 bytes, fresh per call
	TagSize = sha256.Size   // 32 bytes
)

var (
	ErrKeySize   = errors.New("crypto: key must be 32 bytes")
	ErrIVSize    = errors.New("crypto: iv must be 16 bytes")
	ErrIntegrity = errors.New("crypto: message authentication failed")
)

// Envelope is one sealed blob: AES-256-CTR ciphertext plus an HMAC-SHA256
// tag over iv||ciphertext (and any caller AAD). Parts are kept separate so
// callers can persist them as distinct fields.
type Envelope struct {
	IV         []byte
	Ciphertext []byte
	Tag        []byte
}

// Encrypt seals plaintext under key with encrypt-then-MAC. Enc and MAC
// subkeys come from HKDF-SHA256 over the key with a fixed info string; the
// IV is drawn from crypto/rand on every call and never derived from content.
func Encrypt(key, plaintext, aad []byte) (Envelope, error) {
	encKey, macKey, err := deriveSubkeys(key)
	if err != nil {
		return Envelope{}, err
	}
	defer Zero(encKey)
	defer Zero(macKey)

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return Envelope{}, err
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return Envelope{}, err
	}
	ct := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv).XORKeyStream(ct, plaintext)

	return Envelope{IV: iv, Ciphertext: ct, Tag: computeTag(macKey, aad, iv, ct)}, nil
}

// Decrypt authenticates and opens an envelope. Fails closed: any tag
// mismatch returns ErrIntegrity and no plaintext. Tag comparison is
// constant-time.
func Decrypt(key []byte, env Envelope, aad []byte) ([]byte, error) {
	if len(env.IV) != IVSize {
		return nil, ErrIVSize
	}
	if len(env.Tag) != TagSize {
		return nil, ErrIntegrity
	}
	encKey, macKey, err := deriveSubkeys(key)
	if err != nil {
		return nil, err
	}
	defer Zero(encKey)
	defer Zero(macKey)

	expected := computeTag(macKey, aad, env.IV, env.Ciphertext)
	if subtle.ConstantTimeCompare(expected, env.Tag) != 1 {
		return nil, ErrIntegrity
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, err
	}
	pt := make([]byte, len(env.Ciphertext))
	cipher.NewCTR(block, env.IV).XORKeyStream(pt, env.Ciphertext)
	return pt, nil
}

func deriveSubkeys(key []byte) (encKey, macKey []byte, err error) {
	if len(key) != KeySize {
		return nil, nil, ErrKeySize
	}
	stream := hkdf.New(sha256.New, key, nil, []byte("ghostvault/envelope/v1"))
	encKey = make([]byte, 32)
	macKey = make([]byte, 32)
	if _, err = io.ReadFull(stream, encKey); err != nil {
		return nil, nil, err
	}
	if _, err = io.ReadFull(stream, macKey); err != nil {
		return nil, nil, err
	}
	return encKey, macKey, nil
}

func computeTag(macKey, aad, iv, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, macKey)
	if len(aad) > 0 {
		mac.Write(aad)
	}
	mac.Write(iv)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}
