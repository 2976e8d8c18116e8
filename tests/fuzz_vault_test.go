package tests

import (
	"bytes"
	"context"
	"testing"

	"golang.org/x/time/rate"

	"github.com/PathanWasim/GhostVault-sub002/internal/config"
	"github.com/PathanWasim/GhostVault-sub002/internal/core"
	"github.com/PathanWasim/GhostVault-sub002/internal/crypto"
)

func newApp(t *testing.T) *core.App {
	t.Helper()
	cfg := config.Default()
	cfg.Dir = t.TempDir()
	cfg.KDFIterations = crypto.MinIterations
	cfg.WipePasses = 1

	app, err := core.Init(cfg, []byte("Vexing-Quilt 9 Harbor!"), []byte("panic-phrase"), []byte("decoy-phrase"), nil)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	app.Resolver.SetLimiter(rate.NewLimiter(rate.Inf, 0))
	return app
}

func FuzzVaultStoreRetrieve(f *testing.F) {
	f.Add([]byte("secret body"), []byte(`{"name":"a"}`))
	f.Add([]byte{}, []byte{})
	f.Fuzz(func(t *testing.T, data, meta []byte) {
		app := newApp(t)
		s, err := app.Vault.Unlock([]byte("Vexing-Quilt 9 Harbor!"))
		if err != nil {
			t.Fatalf("unlock: %v", err)
		}
		defer app.Vault.Lock(s)

		ctx := context.Background()
		id, err := app.Vault.EncryptAndStore(ctx, s, data, meta)
		if err != nil {
			t.Fatalf("store: %v", err)
		}
		gotData, gotMeta, err := app.Vault.RetrieveAndDecrypt(ctx, s, id)
		if err != nil {
			t.Fatalf("retrieve: %v", err)
		}
		if !bytes.Equal(data, gotData) || !bytes.Equal(meta, gotMeta) {
			t.Fatal("roundtrip mismatch")
		}
		if err := app.Vault.SecureDelete(s, id); err != nil {
			t.Fatalf("delete: %v", err)
		}
	})
}
