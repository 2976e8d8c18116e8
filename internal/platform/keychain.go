package platform

import (
	"encoding/base64"

	"github.com/zalando/go-keyring"
)

const keychainService = "ghostvault"

// Keychain wraps the OS credential store. The daemon keeps its token
// signing seed here so sessions survive a restart without a key file on
// disk.
type Keychain interface {
	Store(keyID string, secret []byte) error
	Load(keyID string) ([]byte, error)
}

type osKeychain struct{}

func NewKeychain() Keychain { return osKeychain{} }

func (osKeychain) Store(keyID string, secret []byte) error {
	return keyring.Set(keychainService, keyID, base64.StdEncoding.EncodeToString(secret))
}

func (osKeychain) Load(keyID string) ([]byte, error) {
	s, err := keyring.Get(keychainService, keyID)
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(s)
}
