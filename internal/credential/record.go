// Package credential stores the three vault credentials (master, panic,
// decoy) and classifies entered passwords into an operating mode.
package credential

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/PathanWasim/GhostVault-sub002/internal/crypto"
)

const StoreVersion = 1

var (
	ErrNoStore         = errors.New("credential: store not found")
	ErrDuplicatePhrase = errors.New("credential: two credentials verify the same password")
	ErrWeakIterations  = errors.New("credential: iteration count below minimum")
)

// Record is one stored credential. Hash is SHA-256 of the PBKDF2-derived
// key, so the file never contains the key that wraps vault material. Master
// and decoy records carry the vault key for their item set wrapped under the
// derived key; the master record additionally wraps the decoy key so a
// master unlock can serve decoy content during lockout escalation.
type Record struct {
	Salt         []byte           `json:"salt"`
	Hash         []byte           `json:"hash"`
	Iterations   int              `json:"iterations"`
	KeyWrap      *crypto.Envelope `json:"key_wrap,omitempty"`
	DecoyKeyWrap *crypto.Envelope `json:"decoy_key_wrap,omitempty"`
}

// verify derives the candidate against the record's parameters and compares
// in constant time. It returns the derived key on match so the caller can
// unwrap; the caller owns zeroing it.
func (r *Record) verify(candidate []byte) (bool, []byte, error) {
	derived, err := crypto.Derive(candidate, crypto.KDFParams{Salt: r.Salt, Iterations: r.Iterations})
	if err != nil {
		return false, nil, err
	}
	sum := sha256.Sum256(derived)
	if subtle.ConstantTimeCompare(sum[:], r.Hash) == 1 {
		return true, derived, nil
	}
	crypto.Zero(derived)
	return false, nil, nil
}

// newRecord builds a record for password, wrapping key under the derived
// key when key is non-nil.
func newRecord(password, key, decoyKey []byte, iterations int) (Record, error) {
	if iterations < crypto.MinIterations {
		return Record{}, ErrWeakIterations
	}
	p, err := crypto.NewKDFParams()
	if err != nil {
		return Record{}, err
	}
	p.Iterations = iterations
	derived, err := crypto.Derive(password, p)
	if err != nil {
		return Record{}, err
	}
	defer crypto.Zero(derived)

	sum := sha256.Sum256(derived)
	rec := Record{Salt: p.Salt, Hash: sum[:], Iterations: iterations}
	if key != nil {
		env, err := crypto.Encrypt(derived, key, []byte("keywrap"))
		if err != nil {
			return Record{}, err
		}
		rec.KeyWrap = &env
	}
	if decoyKey != nil {
		env, err := crypto.Encrypt(derived, decoyKey, []byte("keywrap-decoy"))
		if err != nil {
			return Record{}, err
		}
		rec.DecoyKeyWrap = &env
	}
	return rec, nil
}

// Store is the on-disk credential set: exactly one record per role.
type Store struct {
	Version int    `json:"version"`
	Master  Record `json:"master"`
	Panic   Record `json:"panic"`
	Decoy   Record `json:"decoy"`

	path string
}

// Setup creates a fresh credential store plus the two vault keys. The three
// passwords must be pairwise distinct; that invariant is what makes Resolve
// return exactly one mode.
func Setup(path string, masterPW, panicPW, decoyPW []byte, iterations int) (*Store, []byte, []byte, error) {
	if bytes.Equal(masterPW, panicPW) || bytes.Equal(masterPW, decoyPW) || bytes.Equal(panicPW, decoyPW) {
		return nil, nil, nil, ErrDuplicatePhrase
	}

	vaultKey := make([]byte, crypto.KeySize)
	decoyKey := make([]byte, crypto.KeySize)
	if _, err := rand.Read(vaultKey); err != nil {
		return nil, nil, nil, err
	}
	if _, err := rand.Read(decoyKey); err != nil {
		return nil, nil, nil, err
	}

	s := &Store{Version: StoreVersion, path: path}
	var err error
	if s.Master, err = newRecord(masterPW, vaultKey, decoyKey, iterations); err != nil {
		return nil, nil, nil, err
	}
	if s.Panic, err = newRecord(panicPW, nil, nil, iterations); err != nil {
		return nil, nil, nil, err
	}
	if s.Decoy, err = newRecord(decoyPW, decoyKey, nil, iterations); err != nil {
		return nil, nil, nil, err
	}
	if err := s.Save(); err != nil {
		return nil, nil, nil, err
	}
	return s, vaultKey, decoyKey, nil
}

func Load(path string) (*Store, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNoStore
	}
	if err != nil {
		return nil, err
	}
	var s Store
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("credential: parse store: %w", err)
	}
	s.path = path
	return &s, nil
}

func (s *Store) Save() error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0600)
}

func (s *Store) Path() string { return s.path }

// ChangeMaster re-derives the master record with a fresh salt and re-wraps
// both keys. Items are untouched; only the wrap changes.
func (s *Store) ChangeMaster(oldPW, newPW []byte, iterations int) error {
	ok, derived, err := s.Master.verify(oldPW)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("credential: old password does not verify")
	}
	defer crypto.Zero(derived)

	vaultKey, err := crypto.Decrypt(derived, *s.Master.KeyWrap, []byte("keywrap"))
	if err != nil {
		return err
	}
	defer crypto.Zero(vaultKey)
	decoyKey, err := crypto.Decrypt(derived, *s.Master.DecoyKeyWrap, []byte("keywrap-decoy"))
	if err != nil {
		return err
	}
	defer crypto.Zero(decoyKey)

	rec, err := newRecord(newPW, vaultKey, decoyKey, iterations)
	if err != nil {
		return err
	}
	s.Master = rec
	return s.Save()
}

// Regenerate replaces every record with ones derived from discarded random
// passwords. Nothing can verify against the result; the vault shell looks
// intact but is permanently unusable.
func (s *Store) Regenerate(iterations int) error {
	var err error
	for _, slot := range []*Record{&s.Master, &s.Panic, &s.Decoy} {
		pw := make([]byte, 32)
		if _, err = rand.Read(pw); err != nil {
			return err
		}
		*slot, err = newRecord(pw, nil, nil, iterations)
		crypto.Zero(pw)
		if err != nil {
			return err
		}
	}
	return s.Save()
}
