package vault

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/PathanWasim/GhostVault-sub002/internal/credential"
	"github.com/PathanWasim/GhostVault-sub002/internal/crypto"
)

// Session owns the unwrapped key for one unlocked vault view. Exactly one
// session is live per vault; a later successful unlock invalidates this one
// and zeroes its key. In-flight operations that already captured the key
// finish against it, then every later call fails authentication.
type Session struct {
	id      string
	mode    credential.Mode
	key     *crypto.GuardedKey
	revoked atomic.Bool
}

func newSession(mode credential.Mode, key []byte) *Session {
	s := &Session{
		id:   uuid.NewString(),
		mode: mode,
		key:  crypto.NewGuardedKey(key),
	}
	crypto.Zero(key)
	return s
}

func (s *Session) ID() string { return s.id }

// Mode reports master or decoy. The caller must not branch content decisions
// on it beyond presentation; storage routing happens inside the vault.
func (s *Session) Mode() credential.Mode { return s.mode }

func (s *Session) valid() bool { return s != nil && !s.revoked.Load() }

// revoke zeroes the key material and marks the session dead. Safe to call
// more than once.
func (s *Session) revoke() {
	if s == nil {
		return
	}
	if s.revoked.CompareAndSwap(false, true) {
		s.key.Destroy()
	}
}
