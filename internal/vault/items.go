package vault

import (
	"encoding/json"
	"fmt"

	"github.com/PathanWasim/GhostVault-sub002/internal/crypto"
)

// Item is the persisted form of one stored file or note: two envelopes, one
// for the content and one for caller metadata, each with its own iv and tag.
// Items are replaced whole on update, never patched.
type Item struct {
	ID   string `json:"id"`
	IV   []byte `json:"iv"`
	CT   []byte `json:"ct"`
	Tag  []byte `json:"tag"`
	Meta struct {
		IV  []byte `json:"iv"`
		CT  []byte `json:"ct"`
		Tag []byte `json:"tag"`
	} `json:"meta"`
}

func contentAAD(id string) []byte { return []byte("item:" + id) }
func metaAAD(id string) []byte    { return []byte("meta:" + id) }

func sealItem(key []byte, id string, plaintext, metadata []byte) ([]byte, error) {
	env, err := crypto.Encrypt(key, plaintext, contentAAD(id))
	if err != nil {
		return nil, err
	}
	menv, err := crypto.Encrypt(key, metadata, metaAAD(id))
	if err != nil {
		return nil, err
	}
	it := Item{ID: id, IV: env.IV, CT: env.Ciphertext, Tag: env.Tag}
	it.Meta.IV, it.Meta.CT, it.Meta.Tag = menv.IV, menv.Ciphertext, menv.Tag
	return json.Marshal(it)
}

func openItem(key []byte, id string, blob []byte) (plaintext, metadata []byte, err error) {
	var it Item
	if err := json.Unmarshal(blob, &it); err != nil {
		return nil, nil, fmt.Errorf("vault: corrupt item blob: %w", err)
	}
	if it.ID != id {
		return nil, nil, crypto.ErrIntegrity
	}
	plaintext, err = crypto.Decrypt(key, crypto.Envelope{IV: it.IV, Ciphertext: it.CT, Tag: it.Tag}, contentAAD(id))
	if err != nil {
		return nil, nil, err
	}
	metadata, err = crypto.Decrypt(key, crypto.Envelope{IV: it.Meta.IV, Ciphertext: it.Meta.CT, Tag: it.Meta.Tag}, metaAAD(id))
	if err != nil {
		return nil, nil, err
	}
	return plaintext, metadata, nil
}
