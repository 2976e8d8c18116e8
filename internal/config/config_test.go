package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PathanWasim/GhostVault-sub002/internal/crypto"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("got %+v, want defaults", cfg)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.yaml")
	body := "dir: /srv/vault\nlockout_threshold: 7\nsession_ttl: 90s\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dir != "/srv/vault" || cfg.LockoutThreshold != 7 || cfg.SessionTTL != 90*time.Second {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
	if cfg.WipePasses != Default().WipePasses {
		t.Fatalf("unset field lost default: %+v", cfg)
	}
}

func TestLoadClampsWeakIterations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.yaml")
	if err := os.WriteFile(path, []byte("kdf_iterations: 10\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.KDFIterations < crypto.MinIterations {
		t.Fatalf("iterations %d below floor", cfg.KDFIterations)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.yaml")
	if err := os.WriteFile(path, []byte("dir: [unclosed"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
