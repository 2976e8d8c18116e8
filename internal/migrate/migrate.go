// Package migrate inspects legacy plaintext vault state and upgrades it to
// the encrypted representation. Assessment is a pure read; the migration
// itself backs everything up first and halts on the first failure, leaving
// originals and backups intact for manual recovery.
package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PathanWasim/GhostVault-sub002/internal/config"
	"github.com/PathanWasim/GhostVault-sub002/internal/credential"
	"github.com/PathanWasim/GhostVault-sub002/internal/vault"
	"github.com/PathanWasim/GhostVault-sub002/internal/wipe"
)

// Assessment reports what still needs upgrading. Recomputed on demand,
// never persisted.
type Assessment struct {
	NeedsPasswordMigration bool
	NeedsFileMigration     bool
	NeedsMetadataMigration bool
	Details                []string
}

func (a Assessment) Needed() bool {
	return a.NeedsPasswordMigration || a.NeedsFileMigration || a.NeedsMetadataMigration
}

// Result is the outcome of one Perform run. BackupPaths names every archive
// written before mutation started.
type Result struct {
	Success     bool
	Log         []string
	BackupPaths []string

	// SealedBackupID is the vault item holding the backup archive after a
	// completed run; the plaintext archive named in BackupPaths is wiped
	// once it is sealed.
	SealedBackupID string

	// GeneratedPanicPassword and GeneratedDecoyPassword are set only when the
	// credential store was created by this migration; the owner should change
	// them immediately.
	GeneratedPanicPassword string
	GeneratedDecoyPassword string
}

type Migrator struct {
	cfg    config.Config
	open   func() (*vault.Vault, error)
	logger *zap.Logger
}

// New builds a migrator for the vault rooted at cfg.Dir. open is called only
// after the credential store is known to exist, so first-run migrations can
// create it before the vault is assembled.
func New(cfg config.Config, open func() (*vault.Vault, error), logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{cfg: cfg, open: open, logger: logger}
}

// Assess classifies each on-disk artifact as plaintext or protected. No
// mutation; calling it twice without an intervening migration returns
// identical results.
func (m *Migrator) Assess() Assessment {
	var a Assessment

	if _, err := os.Stat(m.cfg.LegacyCredentialPath()); err == nil {
		a.NeedsPasswordMigration = true
		a.Details = append(a.Details, "legacy plaintext credential file present")
	} else if _, err := os.Stat(m.cfg.CredentialPath()); os.IsNotExist(err) {
		if dirHasFiles(m.cfg.LegacyFilesDir()) {
			a.NeedsPasswordMigration = true
			a.Details = append(a.Details, "no credential store for existing vault content")
		}
	}

	if dirHasFiles(m.cfg.LegacyFilesDir()) {
		a.NeedsFileMigration = true
		a.Details = append(a.Details, "unencrypted files directory present")
	}
	if _, err := os.Stat(m.cfg.LegacyMetadataPath()); err == nil {
		a.NeedsMetadataMigration = true
		a.Details = append(a.Details, "plaintext metadata file present")
	}
	return a
}

// Perform runs the migration. Transactional with respect to partial
// failure: a backup archive of every legacy artifact is written and
// recorded before the first mutation; any later failure halts the run and
// reports it, leaving originals plus backups for the caller to retry or
// restore by hand. On success the archive is sealed into the vault and its
// plaintext copy wiped. Already-migrated vaults are a successful no-op with
// an empty log.
func (m *Migrator) Perform(ctx context.Context, password []byte) (Result, error) {
	a := m.Assess()
	if !a.Needed() {
		return Result{Success: true}, nil
	}
	var res Result

	archive, err := m.backupLegacy()
	if err != nil {
		return res, fmt.Errorf("migrate: backup: %w", err)
	}
	res.BackupPaths = append(res.BackupPaths, archive)
	res.Log = append(res.Log, "backup written: "+archive)

	if a.NeedsPasswordMigration {
		if err := m.migrateCredentials(password, &res); err != nil {
			return res, fmt.Errorf("migrate: credentials: %w", err)
		}
	}

	var vlt *vault.Vault
	var session *vault.Session
	if m.open != nil {
		vlt, err = m.open()
		if err != nil {
			return res, fmt.Errorf("migrate: open vault: %w", err)
		}
		session, err = vlt.Unlock(password)
		if err != nil {
			return res, fmt.Errorf("migrate: unlock: %w", err)
		}
		defer vlt.Lock(session)
		// Legacy plaintext must land in the genuine item set. Under lockout
		// escalation the master password opens a decoy session, and the decoy
		// password always does; migrating through either would wipe the
		// originals while storing them in the wrong place.
		if session.Mode() != credential.ModeMaster {
			return res, errors.New("migrate: password did not open the genuine vault; clear any lockout escalation and retry")
		}
	}

	if a.NeedsFileMigration || a.NeedsMetadataMigration {
		if vlt == nil {
			return res, fmt.Errorf("migrate: no vault available for content migration")
		}
		if a.NeedsFileMigration {
			if err := m.migrateFiles(ctx, vlt, session, &res); err != nil {
				return res, fmt.Errorf("migrate: files: %w", err)
			}
		}
		if a.NeedsMetadataMigration {
			if err := m.migrateMetadata(ctx, vlt, session, &res); err != nil {
				return res, fmt.Errorf("migrate: metadata: %w", err)
			}
		}
	}

	if vlt != nil {
		if err := m.sealBackup(ctx, vlt, session, archive, &res); err != nil {
			return res, fmt.Errorf("migrate: seal backup: %w", err)
		}
	}

	res.Success = true
	m.logger.Info("migration complete", zap.Int("steps", len(res.Log)))
	return res, nil
}

func (m *Migrator) backupLegacy() (string, error) {
	if err := os.MkdirAll(m.cfg.BackupDir(), 0700); err != nil {
		return "", err
	}
	var entries []BackupEntry
	appendFile := func(name, path string) error {
		b, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		entries = append(entries, BackupEntry{Name: name, Mode: uint32(info.Mode()), Data: b})
		return nil
	}

	if err := appendFile("config.properties", m.cfg.LegacyCredentialPath()); err != nil {
		return "", err
	}
	if err := appendFile("metadata.json", m.cfg.LegacyMetadataPath()); err != nil {
		return "", err
	}
	files, _ := os.ReadDir(m.cfg.LegacyFilesDir())
	for _, f := range files {
		if !f.Type().IsRegular() {
			continue
		}
		if err := appendFile(filepath.Join("files", f.Name()), filepath.Join(m.cfg.LegacyFilesDir(), f.Name())); err != nil {
			return "", err
		}
	}

	now := time.Now()
	path := filepath.Join(m.cfg.BackupDir(), fmt.Sprintf("legacy-%d.gvbak", now.Unix()))
	if err := writeBackup(path, now.Unix(), entries); err != nil {
		return "", err
	}
	return path, nil
}

// migrateCredentials creates the encrypted credential store with password as
// master. Panic and decoy passwords cannot be invented for the user; random
// ones are generated and reported so the owner can change them right away.
// The legacy plaintext credential file is wiped, not just removed.
func (m *Migrator) migrateCredentials(password []byte, res *Result) error {
	panicPW, err := randomPassphrase()
	if err != nil {
		return err
	}
	decoyPW, err := randomPassphrase()
	if err != nil {
		return err
	}
	_, vk, dk, err := credential.Setup(m.cfg.CredentialPath(), password, []byte(panicPW), []byte(decoyPW), m.cfg.KDFIterations)
	if err != nil {
		return err
	}
	zero(vk)
	zero(dk)
	res.GeneratedPanicPassword = panicPW
	res.GeneratedDecoyPassword = decoyPW
	res.Log = append(res.Log, "credential store created")

	if _, err := os.Stat(m.cfg.LegacyCredentialPath()); err == nil {
		if err := (wipe.Eraser{Passes: m.cfg.WipePasses}).Erase(m.cfg.LegacyCredentialPath()); err != nil {
			return err
		}
		res.Log = append(res.Log, "legacy credential file wiped")
	}
	return nil
}

func (m *Migrator) migrateFiles(ctx context.Context, vlt *vault.Vault, s *vault.Session, res *Result) error {
	files, err := os.ReadDir(m.cfg.LegacyFilesDir())
	if err != nil {
		return err
	}
	eraser := wipe.Eraser{Passes: m.cfg.WipePasses}
	for _, f := range files {
		if !f.Type().IsRegular() {
			continue
		}
		path := filepath.Join(m.cfg.LegacyFilesDir(), f.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		meta, err := json.Marshal(map[string]string{"name": f.Name()})
		if err != nil {
			return err
		}
		id, err := vlt.EncryptAndStore(ctx, s, b, meta)
		if err != nil {
			return err
		}
		if err := eraser.Erase(path); err != nil {
			return err
		}
		res.Log = append(res.Log, fmt.Sprintf("file %s migrated as %s", f.Name(), id))
	}
	// Remove the now-empty directory; leftover subdirectories stay put.
	_ = os.Remove(m.cfg.LegacyFilesDir())
	return nil
}

func (m *Migrator) migrateMetadata(ctx context.Context, vlt *vault.Vault, s *vault.Session, res *Result) error {
	path := m.cfg.LegacyMetadataPath()
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	id, err := vlt.EncryptAndStore(ctx, s, b, []byte(`{"name":"legacy-metadata.json"}`))
	if err != nil {
		return err
	}
	if err := (wipe.Eraser{Passes: m.cfg.WipePasses}).Erase(path); err != nil {
		return err
	}
	res.Log = append(res.Log, "legacy metadata migrated as "+id)
	return nil
}

// sealBackup stores the backup archive as an encrypted vault item and wipes
// the plaintext copy. Runs only after every other step succeeded, so a
// halted migration keeps its cleartext archive for manual recovery while a
// completed one leaves nothing readable behind.
func (m *Migrator) sealBackup(ctx context.Context, vlt *vault.Vault, s *vault.Session, archive string, res *Result) error {
	b, err := os.ReadFile(archive)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(map[string]string{"name": filepath.Base(archive)})
	if err != nil {
		return err
	}
	id, err := vlt.EncryptAndStore(ctx, s, b, meta)
	if err != nil {
		return err
	}
	if err := (wipe.Eraser{Passes: m.cfg.WipePasses}).Erase(archive); err != nil {
		return err
	}
	res.SealedBackupID = id
	res.Log = append(res.Log, "backup archive sealed as "+id+"; plaintext copy wiped")
	return nil
}

func dirHasFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			return true
		}
	}
	return false
}

func writeEntry(destDir string, e BackupEntry) error {
	name := filepath.Clean(e.Name)
	if name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) || filepath.IsAbs(name) {
		return fmt.Errorf("migrate: unsafe entry name %q", e.Name)
	}
	path := filepath.Join(destDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	mode := os.FileMode(e.Mode)
	if mode == 0 {
		mode = 0600
	}
	return os.WriteFile(path, e.Data, mode)
}

func randomPassphrase() (string, error) {
	b, err := randomBytes(18)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", b), nil
}
