// Package audit keeps a hash-chained, append-only record of security
// transitions. Each entry commits to the one before it, so truncation or
// edits are detectable with Verify.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type Entry struct {
	TS       int64  `json:"ts"`
	Category string `json:"category"`
	Summary  string `json:"summary"`
	Hash     string `json:"hash"`
}

// Store persists serialized entries in order. Implemented by the bbolt
// index; a nil store keeps the log memory-only.
type Store interface {
	AppendAuditRecord(rec []byte) error
	AuditRecords() ([][]byte, error)
}

// Log is safe for concurrent use; appends from different vault operations
// interleave but each entry still commits to the one written before it.
type Log struct {
	mu       sync.Mutex
	store    Store
	lastHash []byte
	entries  []Entry
}

func New(store Store) (*Log, error) {
	l := &Log{store: store}
	if store == nil {
		return l, nil
	}
	recs, err := store.AuditRecords()
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		var e Entry
		if err := json.Unmarshal(rec, &e); err != nil {
			return nil, fmt.Errorf("audit: corrupt record: %w", err)
		}
		l.entries = append(l.entries, e)
		sum, err := hex.DecodeString(e.Hash)
		if err != nil {
			return nil, fmt.Errorf("audit: corrupt hash: %w", err)
		}
		l.lastHash = sum
	}
	return l, nil
}

func (l *Log) Append(category, summary string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h := sha256.New()
	h.Write(l.lastHash)
	h.Write([]byte(category))
	h.Write([]byte(summary))
	sum := h.Sum(nil)

	e := Entry{
		TS:       time.Now().Unix(),
		Category: category,
		Summary:  summary,
		Hash:     hex.EncodeToString(sum),
	}
	if l.store != nil {
		rec, err := json.Marshal(e)
		if err != nil {
			return Entry{}, err
		}
		if err := l.store.AppendAuditRecord(rec); err != nil {
			return Entry{}, err
		}
	}
	l.lastHash = sum
	l.entries = append(l.entries, e)
	return e, nil
}

func (l *Log) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var prev []byte
	for i, e := range l.entries {
		h := sha256.New()
		h.Write(prev)
		h.Write([]byte(e.Category))
		h.Write([]byte(e.Summary))
		sum := h.Sum(nil)
		if hex.EncodeToString(sum) != e.Hash {
			return fmt.Errorf("audit chain broken at entry %d", i)
		}
		prev = sum
	}
	return nil
}

func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}
