package validate_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PathanWasim/GhostVault-sub002/internal/audit"
	"github.com/PathanWasim/GhostVault-sub002/internal/config"
	"github.com/PathanWasim/GhostVault-sub002/internal/core"
	"github.com/PathanWasim/GhostVault-sub002/internal/credential"
	"github.com/PathanWasim/GhostVault-sub002/internal/crypto"
	"github.com/PathanWasim/GhostVault-sub002/internal/storage"
	"github.com/PathanWasim/GhostVault-sub002/internal/validate"
)

const (
	masterPW = "Vexing-Quilt 9 Harbor!"
	panicPW  = "panic-phrase"
	decoyPW  = "decoy-phrase"
)

func newApp(t *testing.T) *core.App {
	t.Helper()
	cfg := config.Default()
	cfg.Dir = t.TempDir()
	cfg.KDFIterations = crypto.MinIterations

	app, err := core.Init(cfg, []byte(masterPW), []byte(panicPW), []byte(decoyPW), nil)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	return app
}

func findingFor(r validate.Report, category string) (validate.Finding, bool) {
	for _, f := range r.Findings {
		if f.Category == category {
			return f, true
		}
	}
	return validate.Finding{}, false
}

func TestFreshVaultIsClean(t *testing.T) {
	app := newApp(t)

	s, err := app.Vault.Unlock([]byte(masterPW))
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := app.Vault.EncryptAndStore(context.Background(), s, []byte("secret"), []byte(`{"name":"a"}`)); err != nil {
		t.Fatalf("store: %v", err)
	}
	app.Vault.Lock(s)

	r := app.Validator().Run()
	if r.OverallLevel != validate.LevelOK {
		t.Fatalf("clean vault graded %s: %+v", r.OverallLevel, r.Findings)
	}
	if len(r.Recommendations) != 0 {
		t.Fatalf("clean vault has recommendations: %v", r.Recommendations)
	}
}

func TestMissingCredentialStoreIsCritical(t *testing.T) {
	cfg := config.Default()
	cfg.Dir = t.TempDir()
	ix, err := storage.OpenIndex(cfg.IndexPath())
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()
	if err := ix.Initialize(); err != nil {
		t.Fatal(err)
	}

	v := validate.New(cfg, ix,
		storage.NewFileBlobStore(cfg.ItemsDir()),
		storage.NewFileBlobStore(cfg.DecoyDir()), nil)
	r := v.Run()
	if r.OverallLevel != validate.LevelCritical {
		t.Fatalf("missing credentials graded %s", r.OverallLevel)
	}
	f, ok := findingFor(r, "credentials")
	if !ok || f.Level != validate.LevelCritical {
		t.Fatalf("no critical credentials finding: %+v", r.Findings)
	}
}

func TestLegacyRemnantsAreCritical(t *testing.T) {
	app := newApp(t)
	if err := os.WriteFile(app.Cfg.LegacyCredentialPath(), []byte("password=x"), 0600); err != nil {
		t.Fatal(err)
	}

	r := app.Validator().Run()
	if r.OverallLevel != validate.LevelCritical {
		t.Fatalf("plaintext remnant graded %s", r.OverallLevel)
	}
	var sawMigrationRec bool
	for _, rec := range r.Recommendations {
		if strings.Contains(rec, "migration") {
			sawMigrationRec = true
		}
	}
	if !sawMigrationRec {
		t.Fatalf("expected a migration recommendation, got %v", r.Recommendations)
	}
}

func TestLeftoverBackupArchiveIsCritical(t *testing.T) {
	app := newApp(t)
	if err := os.MkdirAll(app.Cfg.BackupDir(), 0700); err != nil {
		t.Fatal(err)
	}
	archive := filepath.Join(app.Cfg.BackupDir(), "legacy-1700000000.gvbak")
	if err := os.WriteFile(archive, []byte("GVBAK\x01 cleartext secrets"), 0600); err != nil {
		t.Fatal(err)
	}

	r := app.Validator().Run()
	if r.OverallLevel != validate.LevelCritical {
		t.Fatalf("leftover backup archive graded %s", r.OverallLevel)
	}
	f, ok := findingFor(r, "remnants")
	if !ok {
		t.Fatal("no remnants finding")
	}
	var flagged bool
	for _, issue := range f.Issues {
		if strings.Contains(issue, "backup archive") {
			flagged = true
		}
	}
	if !flagged {
		t.Fatalf("backup archive not reported: %v", f.Issues)
	}
}

func TestWeakIterationsWarn(t *testing.T) {
	app := newApp(t)
	creds, err := credential.Load(app.Cfg.CredentialPath())
	if err != nil {
		t.Fatal(err)
	}
	creds.Panic.Iterations = 1000
	if err := creds.Save(); err != nil {
		t.Fatal(err)
	}

	r := app.Validator().Run()
	f, ok := findingFor(r, "credentials")
	if !ok || f.Level != validate.LevelWarning {
		t.Fatalf("weak iterations not flagged: %+v", r.Findings)
	}
}

func TestSharedSaltIsCritical(t *testing.T) {
	app := newApp(t)
	creds, err := credential.Load(app.Cfg.CredentialPath())
	if err != nil {
		t.Fatal(err)
	}
	creds.Panic.Salt = creds.Master.Salt
	if err := creds.Save(); err != nil {
		t.Fatal(err)
	}

	r := app.Validator().Run()
	f, _ := findingFor(r, "credentials")
	if f.Level != validate.LevelCritical {
		t.Fatalf("shared salt not critical: %+v", f)
	}
}

func TestMalformedAndOrphanedItemsWarn(t *testing.T) {
	app := newApp(t)
	ctx := context.Background()

	if err := app.Genuine.Put(ctx, "junkblob", []byte("not an item")); err != nil {
		t.Fatal(err)
	}
	if err := app.Index.PutItemMeta(storage.KindGenuine, storage.ItemMeta{ID: "ghost"}); err != nil {
		t.Fatal(err)
	}

	r := app.Validator().Run()
	f, ok := findingFor(r, "items")
	if !ok || f.Level != validate.LevelWarning {
		t.Fatalf("item inconsistencies not flagged: %+v", r.Findings)
	}
	var sawMalformed, sawMissing bool
	for _, issue := range f.Issues {
		if strings.Contains(issue, "junkblob") {
			sawMalformed = true
		}
		if strings.Contains(issue, "ghost") {
			sawMissing = true
		}
	}
	if !sawMalformed || !sawMissing {
		t.Fatalf("expected both issue kinds, got %v", f.Issues)
	}
}

func TestBrokenAuditChainIsCritical(t *testing.T) {
	app := newApp(t)
	if _, err := app.Audit.Append("test", "genuine entry"); err != nil {
		t.Fatal(err)
	}
	// Forge a record whose hash does not extend the chain.
	forged := []byte(`{"ts":1,"category":"test","summary":"forged","hash":"00ff"}`)
	if err := app.Index.AppendAuditRecord(forged); err != nil {
		t.Fatal(err)
	}
	log, err := audit.New(app.Index)
	if err != nil {
		t.Fatal(err)
	}

	v := validate.New(app.Cfg, app.Index, app.Genuine, app.Decoy, log)
	r := v.Run()
	f, ok := findingFor(r, "audit")
	if !ok || f.Level != validate.LevelCritical {
		t.Fatalf("tampered audit chain not critical: %+v", r.Findings)
	}
}

func TestNonLoopbackListenIsFlagged(t *testing.T) {
	app := newApp(t)
	app.Cfg.Listen = "0.0.0.0:8573"

	v := validate.New(app.Cfg, app.Index, app.Genuine, app.Decoy, app.Audit)
	r := v.Run()
	f, ok := findingFor(r, "config")
	if !ok || f.Level != validate.LevelInfo {
		t.Fatalf("exposed listen address not flagged: %+v", r.Findings)
	}
}
