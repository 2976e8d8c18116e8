// Package core assembles the vault stack from a Config: credential store,
// index, audit log, resolver and vault, opened in the right order and torn
// down together. The CLI and the daemon both build on it.
package core

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/PathanWasim/GhostVault-sub002/internal/audit"
	"github.com/PathanWasim/GhostVault-sub002/internal/config"
	"github.com/PathanWasim/GhostVault-sub002/internal/credential"
	"github.com/PathanWasim/GhostVault-sub002/internal/crypto"
	"github.com/PathanWasim/GhostVault-sub002/internal/storage"
	"github.com/PathanWasim/GhostVault-sub002/internal/strength"
	"github.com/PathanWasim/GhostVault-sub002/internal/validate"
	"github.com/PathanWasim/GhostVault-sub002/internal/vault"
	"github.com/PathanWasim/GhostVault-sub002/internal/wipe"
)

var (
	ErrNotInitialized = errors.New("core: vault not initialized")
	// ErrWeakMasterPassword rejects setup with a master password below the
	// acceptable strength bar. Panic and decoy passwords are not graded.
	ErrWeakMasterPassword = errors.New("core: master password too weak")
)

// App is one opened vault stack. Not safe to Open twice on the same dir.
type App struct {
	Cfg      config.Config
	Creds    *credential.Store
	Index    *storage.Index
	Audit    *audit.Log
	Resolver *credential.Resolver
	Vault    *vault.Vault
	Genuine  storage.BlobStore
	Decoy    storage.BlobStore
	Logger   *zap.Logger
}

// Initialized reports whether a credential store exists under cfg.Dir.
func Initialized(cfg config.Config) bool {
	_, err := os.Stat(cfg.CredentialPath())
	return err == nil
}

// Init creates a fresh vault: grades the master password, writes the
// credential store and opens the stack. The three passwords must be
// pairwise distinct; credential.Setup enforces that.
func Init(cfg config.Config, master, panicPW, decoyPW []byte, logger *zap.Logger) (*App, error) {
	if Initialized(cfg) {
		return nil, fmt.Errorf("core: vault already initialized at %s", cfg.Dir)
	}
	if res := strength.Score(string(master)); !res.Acceptable() {
		return nil, fmt.Errorf("%w: %s", ErrWeakMasterPassword, res.Feedback)
	}
	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, err
	}
	_, vk, dk, err := credential.Setup(cfg.CredentialPath(), master, panicPW, decoyPW, cfg.KDFIterations)
	if err != nil {
		return nil, err
	}
	crypto.Zero(vk)
	crypto.Zero(dk)
	return Open(cfg, logger)
}

// Open assembles the stack for an existing vault.
func Open(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	creds, err := credential.Load(cfg.CredentialPath())
	if err != nil {
		if errors.Is(err, credential.ErrNoStore) {
			return nil, ErrNotInitialized
		}
		return nil, err
	}

	ix, err := storage.OpenIndex(cfg.IndexPath())
	if err != nil {
		return nil, err
	}
	if err := ix.Initialize(); err != nil {
		ix.Close()
		return nil, err
	}

	log, err := audit.New(ix)
	if err != nil {
		ix.Close()
		return nil, err
	}

	res := credential.NewResolver(creds, ix, log, logger, cfg.LockoutThreshold)
	res.SetEraser(wipe.Eraser{Passes: cfg.WipePasses})
	genuine := storage.NewFileBlobStore(cfg.ItemsDir())
	decoy := storage.NewFileBlobStore(cfg.DecoyDir())

	v := vault.New(vault.Options{
		Genuine:  genuine,
		Decoy:    decoy,
		Index:    ix,
		Resolver: res,
		Eraser:   wipe.Eraser{Passes: cfg.WipePasses},
		Audit:    log,
		Logger:   logger,
	})

	return &App{
		Cfg:      cfg,
		Creds:    creds,
		Index:    ix,
		Audit:    log,
		Resolver: res,
		Vault:    v,
		Genuine:  genuine,
		Decoy:    decoy,
		Logger:   logger,
	}, nil
}

func (a *App) Close() error {
	return a.Index.Close()
}

// Validator builds the read-only security auditor over this stack.
func (a *App) Validator() *validate.Validator {
	return validate.New(a.Cfg, a.Index, a.Genuine, a.Decoy, a.Audit)
}
