// Package vault is the operational core behind the UI: unlocking, sealed
// item storage, secure deletion and the panic path. All operations are
// synchronous; long-running calls are expected to be dispatched off the
// foreground by the caller.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PathanWasim/GhostVault-sub002/internal/audit"
	"github.com/PathanWasim/GhostVault-sub002/internal/credential"
	"github.com/PathanWasim/GhostVault-sub002/internal/crypto"
	"github.com/PathanWasim/GhostVault-sub002/internal/storage"
	"github.com/PathanWasim/GhostVault-sub002/internal/wipe"
)

// ErrAuthentication is the single user-safe failure for wrong passwords and
// dead sessions. Root-cause detail stays in logs; callers get no oracle
// separating "wrong password" from "stale key".
var ErrAuthentication = errors.New("vault: authentication failed")

var ErrNotFound = errors.New("vault: item not found")

type Vault struct {
	mu      sync.Mutex
	active  *Session
	genuine storage.BlobStore
	decoy   storage.BlobStore
	index   *storage.Index
	res     *credential.Resolver
	eraser  wipe.Eraser
	log     *audit.Log
	logger  *zap.Logger

	itemMu sync.Mutex
	locks  map[string]*itemLock
}

type Options struct {
	Genuine  storage.BlobStore
	Decoy    storage.BlobStore
	Index    *storage.Index
	Resolver *credential.Resolver
	Eraser   wipe.Eraser
	Audit    *audit.Log
	Logger   *zap.Logger
}

func New(opts Options) *Vault {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	v := &Vault{
		genuine: opts.Genuine,
		decoy:   opts.Decoy,
		index:   opts.Index,
		res:     opts.Resolver,
		eraser:  opts.Eraser,
		log:     opts.Audit,
		logger:  opts.Logger,
		locks:   make(map[string]*itemLock),
	}
	v.res.SetPanicHook(v.destroyGenuine)
	return v
}

// Unlock resolves the password and, on a master or decoy outcome, hands back
// the single live session. Any prior session is revoked first. Panic and
// invalid outcomes both surface as ErrAuthentication so an observer cannot
// tell a destroyed vault from a typo.
func (v *Vault) Unlock(password []byte) (*Session, error) {
	res, err := v.res.Resolve(password)
	if err != nil {
		v.logger.Error("resolve failed", zap.Error(err))
		return nil, ErrAuthentication
	}
	switch res.Mode {
	case credential.ModeMaster, credential.ModeDecoy:
		v.mu.Lock()
		v.active.revoke()
		s := newSession(res.Mode, res.Key)
		v.active = s
		v.mu.Unlock()
		return s, nil
	case credential.ModePanic, credential.ModeInvalid:
		return nil, ErrAuthentication
	default:
		return nil, ErrAuthentication
	}
}

// Lock revokes the session and zeroes its key. Always safe to call, from
// any goroutine, including an idle-timeout timer.
func (v *Vault) Lock(s *Session) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if s != nil {
		s.revoke()
	}
	if v.active == s {
		v.active = nil
	}
}

// EncryptAndStore seals plaintext plus caller metadata into a new item and
// returns its opaque id. Decoy sessions write to the decoy store; the two
// stores never share an id or a key.
func (v *Vault) EncryptAndStore(ctx context.Context, s *Session, plaintext, metadata []byte) (string, error) {
	key, kind, store, err := v.capture(s)
	if err != nil {
		return "", err
	}
	defer crypto.Zero(key)

	id := uuid.NewString()
	unlock := v.lockItem(id)
	defer unlock()

	blob, err := sealItem(key, id, plaintext, metadata)
	if err != nil {
		return "", err
	}
	if err := store.Put(ctx, id, blob); err != nil {
		return "", fmt.Errorf("vault: store item: %w", err)
	}
	if err := v.index.PutItemMeta(kind, storage.ItemMeta{
		ID:      id,
		Created: time.Now().Unix(),
		Size:    len(blob),
	}); err != nil {
		return "", err
	}
	v.audit("item stored")
	return id, nil
}

// RetrieveAndDecrypt opens an item. Tag mismatch surfaces as
// crypto.ErrIntegrity; corruption and tampering are indistinguishable.
func (v *Vault) RetrieveAndDecrypt(ctx context.Context, s *Session, id string) (plaintext, metadata []byte, err error) {
	key, _, store, err := v.capture(s)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.Zero(key)

	unlock := v.lockItem(id)
	defer unlock()

	blob, err := store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("vault: load item: %w", err)
	}
	return openItem(key, id, blob)
}

// List returns the metadata index for the session's item set.
func (v *Vault) List(s *Session) ([]storage.ItemMeta, error) {
	key, kind, _, err := v.capture(s)
	if err != nil {
		return nil, err
	}
	crypto.Zero(key)
	return v.index.ListItemMeta(kind)
}

// SecureDelete wipes the item's backing file with multi-pass overwrite
// before dropping it from the index. A wipe failure propagates and leaves
// the index entry in place; deletion never silently half-happens.
func (v *Vault) SecureDelete(s *Session, id string) error {
	key, kind, store, err := v.capture(s)
	if err != nil {
		return err
	}
	crypto.Zero(key)

	unlock := v.lockItem(id)
	defer unlock()

	if _, err := v.index.GetItemMeta(kind, id); errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	if err := v.eraser.Erase(store.Path(id)); err != nil {
		return err
	}
	if err := v.index.DeleteItemMeta(kind, id); err != nil {
		return err
	}
	v.audit("item securely deleted")
	return nil
}

// ResetLockout clears the failed-attempt escalation. Exposed for the
// explicit administrative reset; a plain master unlock does not clear it.
func (v *Vault) ResetLockout() error { return v.res.ResetLockout() }

// PanicWipe is the explicit destruction path: the master password authorizes
// wiping every genuine item and regenerating an unusable credential shell.
// Same sequence the panic password triggers at unlock.
func (v *Vault) PanicWipe(password []byte) error { return v.res.TriggerPanic(password) }

// destroyGenuine is the panic hook: multi-pass wipe of every genuine item,
// then the genuine index. Runs to completion; the first error is returned
// after all items were attempted. The decoy set is left untouched.
func (v *Vault) destroyGenuine() error {
	v.mu.Lock()
	v.active.revoke()
	v.active = nil
	v.mu.Unlock()

	ids, err := v.genuine.List(context.Background())
	if err != nil {
		return fmt.Errorf("vault: enumerate items for wipe: %w", err)
	}
	var firstErr error
	for _, id := range ids {
		if err := v.eraser.Erase(v.genuine.Path(id)); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			v.logger.Error("wipe failed", zap.String("id", id), zap.Error(err))
		}
	}
	if err := v.index.ClearItemMeta(storage.KindGenuine); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// capture snapshots the session key and routes to the store for its mode.
// The copy means a concurrent Lock cannot zero a key mid-operation; the
// operation completes against the captured key, then the next call fails.
func (v *Vault) capture(s *Session) ([]byte, storage.ItemKind, storage.BlobStore, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !s.valid() || v.active != s {
		return nil, 0, nil, ErrAuthentication
	}
	src := s.key.Bytes()
	if src == nil {
		return nil, 0, nil, ErrAuthentication
	}
	key := make([]byte, len(src))
	copy(key, src)

	switch s.mode {
	case credential.ModeDecoy:
		return key, storage.KindDecoy, v.decoy, nil
	default:
		return key, storage.KindGenuine, v.genuine, nil
	}
}

// itemLock is a per-id mutex with a holder count, so the map entry can be
// dropped once the last waiter releases it.
type itemLock struct {
	mu   sync.Mutex
	refs int
}

// lockItem serializes operations on one item id. Entries are evicted when
// uncontended, keeping the lock map proportional to in-flight operations
// rather than to every id ever touched.
func (v *Vault) lockItem(id string) func() {
	v.itemMu.Lock()
	l, ok := v.locks[id]
	if !ok {
		l = &itemLock{}
		v.locks[id] = l
	}
	l.refs++
	v.itemMu.Unlock()
	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		v.itemMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(v.locks, id)
		}
		v.itemMu.Unlock()
	}
}

func (v *Vault) audit(summary string) {
	if v.log == nil {
		return
	}
	if _, err := v.log.Append("vault", summary); err != nil {
		v.logger.Error("audit append failed", zap.Error(err))
	}
}
