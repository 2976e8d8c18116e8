package migrate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/PathanWasim/GhostVault-sub002/internal/config"
	"github.com/PathanWasim/GhostVault-sub002/internal/core"
	"github.com/PathanWasim/GhostVault-sub002/internal/crypto"
	"github.com/PathanWasim/GhostVault-sub002/internal/vault"
)

const migrationMaster = "migration-master-pw"

// legacyVault lays out the plaintext artifacts an unmigrated install has.
func legacyVault(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Dir = t.TempDir()
	cfg.KDFIterations = crypto.MinIterations
	cfg.WipePasses = 1

	if err := os.WriteFile(cfg.LegacyCredentialPath(), []byte("password=hunter2\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(cfg.LegacyFilesDir(), 0700); err != nil {
		t.Fatal(err)
	}
	for name, body := range map[string]string{
		"taxes.pdf": "plaintext tax return",
		"diary.txt": "dear diary",
	} {
		if err := os.WriteFile(filepath.Join(cfg.LegacyFilesDir(), name), []byte(body), 0600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(cfg.LegacyMetadataPath(), []byte(`{"taxes.pdf":{"added":"2021-01-01"}}`), 0600); err != nil {
		t.Fatal(err)
	}
	return cfg
}

// newMigrator returns the migrator plus a close func releasing the vault it
// opened during Perform, so tests can reopen the same directory afterwards.
func newMigrator(t *testing.T, cfg config.Config) (*Migrator, func()) {
	t.Helper()
	var opened *core.App
	open := func() (*vault.Vault, error) {
		app, err := core.Open(cfg, nil)
		if err != nil {
			return nil, err
		}
		opened = app
		return app.Vault, nil
	}
	closeApp := func() {
		if opened != nil {
			opened.Close()
			opened = nil
		}
	}
	t.Cleanup(closeApp)
	return New(cfg, open, nil), closeApp
}

func TestAssessIsIdempotent(t *testing.T) {
	cfg := legacyVault(t)
	m, _ := newMigrator(t, cfg)

	first := m.Assess()
	if !first.NeedsPasswordMigration || !first.NeedsFileMigration || !first.NeedsMetadataMigration {
		t.Fatalf("expected every migration flag set, got %+v", first)
	}
	second := m.Assess()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("assessment drifted without a migration: %+v vs %+v", first, second)
	}
}

func TestAssessEmptyDirNeedsNothing(t *testing.T) {
	cfg := config.Default()
	cfg.Dir = t.TempDir()
	m, _ := newMigrator(t, cfg)
	if a := m.Assess(); a.Needed() {
		t.Fatalf("empty dir flagged for migration: %+v", a)
	}
}

func TestPerformMigratesLegacyState(t *testing.T) {
	cfg := legacyVault(t)
	m, closeApp := newMigrator(t, cfg)

	res, err := m.Perform(context.Background(), []byte(migrationMaster))
	if err != nil {
		t.Fatalf("perform: %v", err)
	}
	if !res.Success {
		t.Fatal("migration reported failure")
	}
	if res.GeneratedPanicPassword == "" || res.GeneratedDecoyPassword == "" {
		t.Fatal("expected generated panic and decoy passwords")
	}
	if res.GeneratedPanicPassword == res.GeneratedDecoyPassword {
		t.Fatal("generated passwords must differ")
	}
	if len(res.BackupPaths) != 1 {
		t.Fatalf("expected one backup archive, got %v", res.BackupPaths)
	}

	// Legacy plaintext must be gone.
	for _, path := range []string{cfg.LegacyCredentialPath(), cfg.LegacyMetadataPath()} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("legacy artifact survived migration: %s", path)
		}
	}
	if entries, err := os.ReadDir(cfg.LegacyFilesDir()); err == nil && len(entries) > 0 {
		t.Error("legacy files directory still has content")
	}

	// The plaintext archive was sealed into the vault and wiped from disk.
	if res.SealedBackupID == "" {
		t.Fatal("backup was not sealed into the vault")
	}
	if _, err := os.Stat(res.BackupPaths[0]); !os.IsNotExist(err) {
		t.Fatalf("plaintext backup archive survived migration: %s", res.BackupPaths[0])
	}

	// Content is now reachable only through the vault.
	closeApp()
	app, err := core.Open(cfg, nil)
	if err != nil {
		t.Fatalf("open migrated vault: %v", err)
	}
	defer app.Close()
	s, err := app.Vault.Unlock([]byte(migrationMaster))
	if err != nil {
		t.Fatalf("unlock migrated vault: %v", err)
	}
	defer app.Vault.Lock(s)
	items, err := app.Vault.List(s)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("expected 2 files, metadata and sealed backup = 4 items, got %d", len(items))
	}

	// The sealed archive still decodes and retains every original.
	raw, _, err := app.Vault.RetrieveAndDecrypt(context.Background(), s, res.SealedBackupID)
	if err != nil {
		t.Fatalf("retrieve sealed backup: %v", err)
	}
	archive := filepath.Join(t.TempDir(), "recovered.gvbak")
	if err := os.WriteFile(archive, raw, 0600); err != nil {
		t.Fatal(err)
	}
	entries, err := ReadBackup(archive)
	if err != nil {
		t.Fatalf("read sealed backup: %v", err)
	}
	byName := make(map[string]string, len(entries))
	for _, e := range entries {
		byName[e.Name] = string(e.Data)
	}
	if byName[filepath.Join("files", "diary.txt")] != "dear diary" {
		t.Fatalf("sealed backup missing file content: %v", byName)
	}
	if byName["config.properties"] == "" || byName["metadata.json"] == "" {
		t.Fatalf("sealed backup missing legacy artifacts: %v", byName)
	}
}

func TestPerformRefusesEscalatedSession(t *testing.T) {
	master := "Vexing-Quilt 9 Harbor!"
	cfg := config.Default()
	cfg.Dir = t.TempDir()
	cfg.KDFIterations = crypto.MinIterations
	cfg.WipePasses = 1
	cfg.LockoutThreshold = 2

	app, err := core.Init(cfg, []byte(master), []byte("panic-phrase"), []byte("decoy-phrase"), nil)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	app.Resolver.SetLimiter(rate.NewLimiter(rate.Inf, 0))
	for i := 0; i < cfg.LockoutThreshold; i++ {
		if _, err := app.Vault.Unlock([]byte("wrong-guess")); err == nil {
			t.Fatal("wrong password unlocked")
		}
	}
	app.Close()

	// Pending content migration; the master now opens a decoy session.
	if err := os.MkdirAll(cfg.LegacyFilesDir(), 0700); err != nil {
		t.Fatal(err)
	}
	secret := filepath.Join(cfg.LegacyFilesDir(), "secret.txt")
	if err := os.WriteFile(secret, []byte("do not leak"), 0600); err != nil {
		t.Fatal(err)
	}

	m, _ := newMigrator(t, cfg)
	if _, err := m.Perform(context.Background(), []byte(master)); err == nil {
		t.Fatal("migration ran against a decoy session")
	}

	// Originals survive and nothing landed in the decoy store.
	if _, err := os.Stat(secret); err != nil {
		t.Fatalf("legacy file was touched: %v", err)
	}
	if entries, err := os.ReadDir(cfg.DecoyDir()); err == nil && len(entries) > 0 {
		t.Fatalf("decoy store gained %d entries", len(entries))
	}
}

func TestPerformIsNoOpOnceMigrated(t *testing.T) {
	cfg := legacyVault(t)
	m, _ := newMigrator(t, cfg)
	if _, err := m.Perform(context.Background(), []byte(migrationMaster)); err != nil {
		t.Fatalf("first perform: %v", err)
	}

	res, err := m.Perform(context.Background(), []byte(migrationMaster))
	if err != nil {
		t.Fatalf("second perform: %v", err)
	}
	if !res.Success || len(res.Log) != 0 || len(res.BackupPaths) != 0 {
		t.Fatalf("re-migration should be an empty success, got %+v", res)
	}
}

func TestBackupRoundTripAndRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.gvbak")
	want := []BackupEntry{
		{Name: "config.properties", Mode: 0600, Data: []byte("k=v")},
		{Name: filepath.Join("files", "a.txt"), Mode: 0600, Data: []byte("alpha")},
	}
	if err := writeBackup(path, time.Now().Unix(), want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadBackup(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("entries changed through the archive: %+v vs %+v", want, got)
	}

	dest := t.TempDir()
	if err := Restore(path, dest); err != nil {
		t.Fatalf("restore: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dest, "files", "a.txt"))
	if err != nil || string(b) != "alpha" {
		t.Fatalf("restored content = %q, %v", b, err)
	}
}

func TestBackupDetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.gvbak")
	if err := writeBackup(path, 0, []BackupEntry{{Name: "x", Data: []byte("payload")}}); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	b[len(backupMagic)+8] ^= 0x01
	if err := os.WriteFile(path, b, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadBackup(path); !errors.Is(err, ErrChecksum) {
		t.Fatalf("got %v, want ErrChecksum", err)
	}

	if _, err := ReadBackup(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("missing archive should error")
	}
}

func TestRestoreRejectsTraversal(t *testing.T) {
	dest := t.TempDir()
	if err := writeEntry(dest, BackupEntry{Name: filepath.Join("..", "evil"), Data: []byte("x")}); err == nil {
		t.Fatal("path traversal entry accepted")
	}
}
