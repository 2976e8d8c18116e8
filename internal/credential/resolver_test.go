package credential

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/PathanWasim/GhostVault-sub002/internal/audit"
	"github.com/PathanWasim/GhostVault-sub002/internal/crypto"
	"github.com/PathanWasim/GhostVault-sub002/internal/wipe"
)

type memLockout struct {
	attempts  int
	escalated bool
}

func (m *memLockout) FailedAttempts() (int, error)  { return m.attempts, nil }
func (m *memLockout) SetFailedAttempts(n int) error { m.attempts = n; return nil }
func (m *memLockout) Escalated() (bool, error)      { return m.escalated, nil }
func (m *memLockout) SetEscalated(b bool) error     { m.escalated = b; return nil }

func newTestResolver(t *testing.T, threshold int) (*Resolver, *memLockout, []byte, []byte) {
	t.Helper()
	s, vaultKey, decoyKey := setupStore(t)
	lockout := &memLockout{}
	log, err := audit.New(nil)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	r := NewResolver(s, lockout, log, nil, threshold)
	r.sleep = func(time.Duration) {}
	return r, lockout, vaultKey, decoyKey
}

func resolve(t *testing.T, r *Resolver, pw string) Resolution {
	t.Helper()
	res, err := r.Resolve([]byte(pw))
	if err != nil {
		t.Fatalf("resolve %q: %v", pw, err)
	}
	return res
}

func TestResolveClassifiesEachMode(t *testing.T) {
	r, _, vaultKey, decoyKey := newTestResolver(t, 5)

	res := resolve(t, r, "master-phrase")
	if res.Mode != ModeMaster {
		t.Fatalf("master classified as %v", res.Mode)
	}
	if string(res.Key) != string(vaultKey) {
		t.Fatal("master resolution returned wrong key")
	}
	crypto.Zero(res.Key)

	res = resolve(t, r, "decoy-phrase")
	if res.Mode != ModeDecoy {
		t.Fatalf("decoy classified as %v", res.Mode)
	}
	if string(res.Key) != string(decoyKey) {
		t.Fatal("decoy resolution returned wrong key")
	}
	crypto.Zero(res.Key)

	res = resolve(t, r, "no-such-password")
	if res.Mode != ModeInvalid {
		t.Fatalf("junk classified as %v", res.Mode)
	}
	if res.Key != nil {
		t.Fatal("invalid resolution leaked a key")
	}
}

func TestResolveDeterministic(t *testing.T) {
	r, _, _, _ := newTestResolver(t, 50)
	first := resolve(t, r, "decoy-phrase").Mode
	for i := 0; i < 3; i++ {
		if got := resolve(t, r, "decoy-phrase").Mode; got != first {
			t.Fatalf("resolution changed from %v to %v on repeat", first, got)
		}
	}
}

func TestInvalidAttemptsIncrementCounter(t *testing.T) {
	r, lockout, _, _ := newTestResolver(t, 10)
	for i := 1; i <= 3; i++ {
		resolve(t, r, "wrong")
		if lockout.attempts != i {
			t.Fatalf("after %d failures counter = %d", i, lockout.attempts)
		}
	}
}

func TestMasterUnlockResetsCounterBeforeEscalation(t *testing.T) {
	r, lockout, _, _ := newTestResolver(t, 10)
	resolve(t, r, "wrong")
	resolve(t, r, "wrong")
	resolve(t, r, "master-phrase")
	if lockout.attempts != 0 {
		t.Fatalf("counter = %d after master unlock, want 0", lockout.attempts)
	}
}

func TestEscalationForcesDecoyForMaster(t *testing.T) {
	r, lockout, _, decoyKey := newTestResolver(t, 3)
	for i := 0; i < 3; i++ {
		resolve(t, r, "wrong")
	}
	if !lockout.escalated {
		t.Fatal("threshold reached but not escalated")
	}

	res := resolve(t, r, "master-phrase")
	if res.Mode != ModeDecoy {
		t.Fatalf("escalated master resolve = %v, want decoy", res.Mode)
	}
	if string(res.Key) != string(decoyKey) {
		t.Fatal("escalated master resolve did not serve the decoy key")
	}
	crypto.Zero(res.Key)

	// Still escalated until the explicit reset.
	if res := resolve(t, r, "master-phrase"); res.Mode != ModeDecoy {
		t.Fatalf("second escalated resolve = %v, want decoy", res.Mode)
	}
	if err := r.ResetLockout(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if res := resolve(t, r, "master-phrase"); res.Mode != ModeMaster {
		t.Fatalf("post-reset resolve = %v, want master", res.Mode)
	}
}

func TestPanicRegeneratesShellAndRunsHook(t *testing.T) {
	r, _, _, _ := newTestResolver(t, 5)
	wiped := false
	r.SetPanicHook(func() error { wiped = true; return nil })

	res := resolve(t, r, "panic-phrase")
	if res.Mode != ModePanic {
		t.Fatalf("panic classified as %v", res.Mode)
	}
	if !wiped {
		t.Fatal("panic hook not invoked")
	}

	// Former credentials no longer verify: behavior matches a failed login.
	for _, pw := range []string{"master-phrase", "panic-phrase", "decoy-phrase"} {
		if res := resolve(t, r, pw); res.Mode != ModeInvalid {
			t.Fatalf("%q resolved to %v after panic", pw, res.Mode)
		}
	}
}

func TestPanicHookErrorPropagates(t *testing.T) {
	r, _, _, _ := newTestResolver(t, 5)
	wipeErr := errors.New("disk failure")
	r.SetPanicHook(func() error { return wipeErr })
	res, err := r.Resolve([]byte("panic-phrase"))
	if res.Mode != ModePanic {
		t.Fatalf("mode = %v, want panic", res.Mode)
	}
	if !errors.Is(err, wipeErr) {
		t.Fatalf("err = %v, want wipe failure", err)
	}
}

type recordingEraser struct {
	paths []string
}

func (e *recordingEraser) Erase(path string) error {
	e.paths = append(e.paths, path)
	return wipe.Eraser{Passes: 1}.Erase(path)
}

func TestPanicErasesCredentialStoreFile(t *testing.T) {
	r, _, _, _ := newTestResolver(t, 5)
	before, err := os.ReadFile(r.store.Path())
	if err != nil {
		t.Fatalf("read store: %v", err)
	}

	er := &recordingEraser{}
	r.SetEraser(er)
	if res := resolve(t, r, "panic-phrase"); res.Mode != ModePanic {
		t.Fatalf("panic classified as %v", res.Mode)
	}

	if len(er.paths) != 1 || er.paths[0] != r.store.Path() {
		t.Fatalf("eraser ran on %v, want exactly [%s]", er.paths, r.store.Path())
	}
	after, err := os.ReadFile(r.store.Path())
	if err != nil {
		t.Fatalf("read regenerated store: %v", err)
	}
	if bytes.Equal(before, after) {
		t.Fatal("credential store content survived the panic wipe")
	}
}

func TestTriggerPanicRequiresMaster(t *testing.T) {
	r, _, _, _ := newTestResolver(t, 5)
	var fired bool
	r.SetPanicHook(func() error { fired = true; return nil })

	if err := r.TriggerPanic([]byte("wrong-phrase")); err == nil {
		t.Fatal("explicit panic accepted a wrong password")
	}
	if fired {
		t.Fatal("hook ran without authorization")
	}

	if err := r.TriggerPanic([]byte("master-phrase")); err != nil {
		t.Fatalf("explicit panic: %v", err)
	}
	if !fired {
		t.Fatal("hook did not run")
	}
	// The shell was regenerated; nothing resolves anymore.
	if res := resolve(t, r, "master-phrase"); res.Mode != ModeInvalid {
		t.Fatalf("master still resolves as %v after explicit panic", res.Mode)
	}
}
