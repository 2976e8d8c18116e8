// Package config loads vault settings from a YAML file, falling back to
// safe defaults when the file is absent.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PathanWasim/GhostVault-sub002/internal/credential"
	"github.com/PathanWasim/GhostVault-sub002/internal/crypto"
	"github.com/PathanWasim/GhostVault-sub002/internal/wipe"
)

type Config struct {
	// Dir is the vault root; every artifact lives under it.
	Dir string `yaml:"dir"`

	KDFIterations    int           `yaml:"kdf_iterations"`
	LockoutThreshold int           `yaml:"lockout_threshold"`
	WipePasses       int           `yaml:"wipe_passes"`
	SessionTTL       time.Duration `yaml:"session_ttl"`

	// Listen is the vaultd bind address; loopback only by default.
	Listen string `yaml:"listen"`
}

func Default() Config {
	return Config{
		Dir:              ".ghostvault",
		KDFIterations:    crypto.DefaultIterations,
		LockoutThreshold: credential.DefaultLockoutThreshold,
		WipePasses:       wipe.DefaultPasses,
		SessionTTL:       5 * time.Minute,
		Listen:           "127.0.0.1:8573",
	}
}

// Load reads path and overlays it on the defaults. A missing file is not an
// error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.KDFIterations < crypto.MinIterations {
		cfg.KDFIterations = crypto.MinIterations
	}
	if cfg.WipePasses < 1 {
		cfg.WipePasses = wipe.DefaultPasses
	}
	if cfg.LockoutThreshold < 1 {
		cfg.LockoutThreshold = credential.DefaultLockoutThreshold
	}
	return cfg, nil
}

func (c Config) CredentialPath() string { return filepath.Join(c.Dir, "credentials.json") }
func (c Config) IndexPath() string      { return filepath.Join(c.Dir, "index.db") }
func (c Config) ItemsDir() string       { return filepath.Join(c.Dir, "items") }
func (c Config) DecoyDir() string       { return filepath.Join(c.Dir, "decoy") }
func (c Config) BackupDir() string      { return filepath.Join(c.Dir, "backups") }

// Legacy layout probed by the migration assessor.
func (c Config) LegacyCredentialPath() string { return filepath.Join(c.Dir, "config.properties") }
func (c Config) LegacyFilesDir() string       { return filepath.Join(c.Dir, "files") }
func (c Config) LegacyMetadataPath() string   { return filepath.Join(c.Dir, "metadata.json") }
