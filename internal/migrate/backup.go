package migrate

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// Backup archive layout: magic, big-endian payload length, gzip-compressed
// JSON payload, SHA-256 checksum of the compressed bytes. The archive is
// opened only by the migration restore path; nothing else parses it.
var backupMagic = []byte("GVBAK\x01")

const BackupVersion = 1

var (
	ErrBadArchive = errors.New("migrate: not a vault backup archive")
	ErrChecksum   = errors.New("migrate: backup checksum mismatch")
)

type backupPayload struct {
	Version int           `json:"version"`
	Created int64         `json:"created"`
	Entries []BackupEntry `json:"entries"`
}

type BackupEntry struct {
	Name string `json:"name"`
	Mode uint32 `json:"mode"`
	Data []byte `json:"data"`
}

func writeBackup(path string, created int64, entries []BackupEntry) error {
	raw, err := json.Marshal(backupPayload{Version: BackupVersion, Created: created, Entries: entries})
	if err != nil {
		return err
	}

	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	if _, err := zw.Write(raw); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	sum := sha256.Sum256(compressed.Bytes())

	var out bytes.Buffer
	out.Write(backupMagic)
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(compressed.Len()))
	out.Write(lenBuf[:])
	out.Write(compressed.Bytes())
	out.Write(sum[:])
	return os.WriteFile(path, out.Bytes(), 0600)
}

// ReadBackup opens and verifies an archive written by a prior migration.
func ReadBackup(path string) ([]BackupEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(b) < len(backupMagic)+8+sha256.Size || !bytes.HasPrefix(b, backupMagic) {
		return nil, ErrBadArchive
	}
	b = b[len(backupMagic):]
	n := binary.BigEndian.Uint64(b[:8])
	b = b[8:]
	if uint64(len(b)) != n+sha256.Size {
		return nil, ErrBadArchive
	}
	compressed, wantSum := b[:n], b[n:]
	sum := sha256.Sum256(compressed)
	if !bytes.Equal(sum[:], wantSum) {
		return nil, ErrChecksum
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("migrate: open backup body: %w", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	var payload backupPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("migrate: parse backup body: %w", err)
	}
	if payload.Version != BackupVersion {
		return nil, fmt.Errorf("migrate: unsupported backup version %d", payload.Version)
	}
	return payload.Entries, nil
}

// Restore writes each archived entry under destDir. Used for manual
// recovery after a halted migration.
func Restore(archivePath, destDir string) error {
	entries, err := ReadBackup(archivePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0700); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeEntry(destDir, e); err != nil {
			return err
		}
	}
	return nil
}
