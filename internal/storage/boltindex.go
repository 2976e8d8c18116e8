package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names. Item metadata here is deliberately minimal: ids and
// timestamps only, nothing that describes the content.
var (
	configBucket     = []byte("config")
	indexBucket      = []byte("index")
	decoyIndexBucket = []byte("decoy_index")
	auditBucket      = []byte("audit")
)

// Config keys.
var (
	configVersion  = []byte("version")
	configCreated  = []byte("created")
	configAttempts = []byte("failed_attempts")
	configEscal    = []byte("escalated")
)

const IndexVersion = 1

type ItemKind int

const (
	// KindGenuine indexes the real vault items; KindDecoy the disjoint decoy
	// set. The two never share a bucket, an id, or a key.
	KindGenuine ItemKind = iota
	KindDecoy
)

func (k ItemKind) bucket() []byte {
	if k == KindDecoy {
		return decoyIndexBucket
	}
	return indexBucket
}

type ItemMeta struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	Size    int    `json:"size"`
}

// Index is the bbolt-backed side store: item metadata, lockout state and the
// audit log live here; ciphertext blobs do not.
type Index struct {
	db *bolt.DB
}

func OpenIndex(path string) (*Index, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open index: %w", err)
	}
	return &Index{db: db}, nil
}

func (ix *Index) Close() error { return ix.db.Close() }

func (ix *Index) Initialize() error {
	return ix.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{configBucket, indexBucket, decoyIndexBucket, auditBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("storage: create bucket %s: %w", b, err)
			}
		}
		cfg := tx.Bucket(configBucket)
		if cfg.Get(configVersion) != nil {
			return nil
		}
		if err := cfg.Put(configVersion, u64(IndexVersion)); err != nil {
			return err
		}
		return cfg.Put(configCreated, u64(uint64(time.Now().Unix())))
	})
}

func (ix *Index) IsInitialized() (bool, error) {
	var ok bool
	err := ix.db.View(func(tx *bolt.Tx) error {
		cfg := tx.Bucket(configBucket)
		ok = cfg != nil && cfg.Get(configVersion) != nil
		return nil
	})
	return ok, err
}

func (ix *Index) PutItemMeta(kind ItemKind, m ItemMeta) error {
	return ix.db.Update(func(tx *bolt.Tx) error {
		b, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return tx.Bucket(kind.bucket()).Put([]byte(m.ID), b)
	})
}

func (ix *Index) GetItemMeta(kind ItemKind, id string) (ItemMeta, error) {
	var m ItemMeta
	err := ix.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(kind.bucket()).Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &m)
	})
	return m, err
}

func (ix *Index) DeleteItemMeta(kind ItemKind, id string) error {
	return ix.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(kind.bucket()).Delete([]byte(id))
	})
}

func (ix *Index) ListItemMeta(kind ItemKind) ([]ItemMeta, error) {
	var out []ItemMeta
	err := ix.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(kind.bucket()).ForEach(func(_, v []byte) error {
			var m ItemMeta
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			out = append(out, m)
			return nil
		})
	})
	return out, err
}

// ClearItemMeta drops every entry of one kind. Used by the panic path after
// the blobs themselves have been wiped.
func (ix *Index) ClearItemMeta(kind ItemKind) error {
	return ix.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(kind.bucket()); err != nil {
			return err
		}
		_, err := tx.CreateBucket(kind.bucket())
		return err
	})
}

func (ix *Index) FailedAttempts() (int, error) {
	var n int
	err := ix.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(configBucket).Get(configAttempts); raw != nil {
			n = int(binary.BigEndian.Uint64(raw))
		}
		return nil
	})
	return n, err
}

func (ix *Index) SetFailedAttempts(n int) error {
	return ix.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(configBucket).Put(configAttempts, u64(uint64(n)))
	})
}

func (ix *Index) Escalated() (bool, error) {
	var esc bool
	err := ix.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(configBucket).Get(configEscal)
		esc = len(raw) == 1 && raw[0] == 1
		return nil
	})
	return esc, err
}

func (ix *Index) SetEscalated(esc bool) error {
	return ix.db.Update(func(tx *bolt.Tx) error {
		v := []byte{0}
		if esc {
			v[0] = 1
		}
		return tx.Bucket(configBucket).Put(configEscal, v)
	})
}

// AppendAuditRecord stores one serialized audit entry under the next
// sequence number. Records are never rewritten.
func (ix *Index) AppendAuditRecord(rec []byte) error {
	return ix.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(auditBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(u64(seq), rec)
	})
}

func (ix *Index) AuditRecords() ([][]byte, error) {
	var out [][]byte
	err := ix.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(auditBucket).ForEach(func(_, v []byte) error {
			out = append(out, append([]byte(nil), v...))
			return nil
		})
	})
	return out, err
}

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
