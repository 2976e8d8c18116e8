package credential

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/PathanWasim/GhostVault-sub002/internal/audit"
	"github.com/PathanWasim/GhostVault-sub002/internal/crypto"
	"github.com/PathanWasim/GhostVault-sub002/internal/wipe"
)

// Eraser overwrites and removes a file in place. Satisfied by wipe.Eraser.
type Eraser interface {
	Erase(path string) error
}

// Mode is the outcome of resolving an entered password. Closed set; call
// sites switch exhaustively.
type Mode int

const (
	ModeInvalid Mode = iota
	ModeMaster
	ModePanic
	ModeDecoy
)

func (m Mode) String() string {
	switch m {
	case ModeMaster:
		return "master"
	case ModePanic:
		return "panic"
	case ModeDecoy:
		return "decoy"
	default:
		return "invalid"
	}
}

// Resolution carries the classified mode and, for master/decoy outcomes, the
// unwrapped 32-byte key for the matching item set. The caller owns zeroing
// the key.
type Resolution struct {
	Mode Mode
	Key  []byte
}

// LockoutStore persists the failed-attempt counter and the escalation flag
// across restarts. Implemented by the bbolt index.
type LockoutStore interface {
	FailedAttempts() (int, error)
	SetFailedAttempts(int) error
	Escalated() (bool, error)
	SetEscalated(bool) error
}

const DefaultLockoutThreshold = 5

// Resolver classifies candidate passwords. All calls are serialized by a
// single mutex so the failed-attempt counter and mode transition stay atomic
// under concurrent login attempts.
type Resolver struct {
	mu        sync.Mutex
	store     *Store
	lockout   LockoutStore
	log       *audit.Log
	logger    *zap.Logger
	limiter   *rate.Limiter
	threshold int
	onPanic   func() error
	eraser    Eraser
	sleep     func(time.Duration)
}

func NewResolver(store *Store, lockout LockoutStore, log *audit.Log, logger *zap.Logger, threshold int) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	return &Resolver{
		store:     store,
		lockout:   lockout,
		log:       log,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Every(500*time.Millisecond), 3),
		threshold: threshold,
		eraser:    wipe.Eraser{Passes: wipe.DefaultPasses},
		sleep:     time.Sleep,
	}
}

// SetPanicHook installs the destruction callback run when the panic
// credential matches. The hook wipes every genuine item; it runs to
// completion once started.
func (r *Resolver) SetPanicHook(fn func() error) { r.onPanic = fn }

// SetLimiter replaces the attempt throttle. rate.NewLimiter(rate.Inf, 0)
// disables it.
func (r *Resolver) SetLimiter(l *rate.Limiter) { r.limiter = l }

// SetEraser replaces the eraser used on the credential store file during the
// panic sequence.
func (r *Resolver) SetEraser(e Eraser) { r.eraser = e }

// Resolve classifies candidate into exactly one mode. All three records are
// evaluated in a fixed order (master, panic, decoy) with constant-time hash
// compares, so timing does not reveal which record matched. No match bumps
// the monotonic failed-attempt counter; at the threshold the resolver
// escalates and every later credential match is served as decoy until
// ResetLockout.
func (r *Resolver) Resolve(candidate []byte) (Resolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Brute-force throttle: absorb the limiter delay instead of erroring.
	if d := r.limiter.Reserve().Delay(); d > 0 {
		r.sleep(d)
	}

	// Fixed evaluation order, no short-circuit.
	masterOK, masterKey, err := r.store.Master.verify(candidate)
	if err != nil {
		return Resolution{}, err
	}
	panicOK, panicKey, err := r.store.Panic.verify(candidate)
	if err != nil {
		crypto.Zero(masterKey)
		return Resolution{}, err
	}
	crypto.Zero(panicKey)
	decoyOK, decoyDerived, err := r.store.Decoy.verify(candidate)
	if err != nil {
		crypto.Zero(masterKey)
		return Resolution{}, err
	}

	escalated, err := r.lockout.Escalated()
	if err != nil {
		crypto.Zero(masterKey)
		crypto.Zero(decoyDerived)
		return Resolution{}, err
	}

	switch {
	case panicOK:
		crypto.Zero(masterKey)
		crypto.Zero(decoyDerived)
		return r.executePanic()

	case masterOK:
		defer crypto.Zero(masterKey)
		crypto.Zero(decoyDerived)
		if escalated {
			// Lockout escalation outranks a genuine master match until an
			// explicit reset; the caller is steered to decoy content.
			key, err := crypto.Decrypt(masterKey, *r.store.Master.DecoyKeyWrap, []byte("keywrap-decoy"))
			if err != nil {
				return Resolution{}, err
			}
			r.audit("resolve served decoy under escalation")
			return Resolution{Mode: ModeDecoy, Key: key}, nil
		}
		if err := r.lockout.SetFailedAttempts(0); err != nil {
			return Resolution{}, err
		}
		key, err := crypto.Decrypt(masterKey, *r.store.Master.KeyWrap, []byte("keywrap"))
		if err != nil {
			return Resolution{}, err
		}
		r.audit("unlock master")
		return Resolution{Mode: ModeMaster, Key: key}, nil

	case decoyOK:
		defer crypto.Zero(decoyDerived)
		key, err := crypto.Decrypt(decoyDerived, *r.store.Decoy.KeyWrap, []byte("keywrap"))
		if err != nil {
			return Resolution{}, err
		}
		r.audit("unlock decoy")
		return Resolution{Mode: ModeDecoy, Key: key}, nil

	default:
		n, err := r.lockout.FailedAttempts()
		if err != nil {
			return Resolution{}, err
		}
		n++
		if err := r.lockout.SetFailedAttempts(n); err != nil {
			return Resolution{}, err
		}
		r.audit("invalid attempt")
		if n >= r.threshold && !escalated {
			if err := r.lockout.SetEscalated(true); err != nil {
				return Resolution{}, err
			}
			r.audit("lockout escalation engaged")
			r.logger.Warn("lockout threshold reached", zap.Int("attempts", n))
		}
		return Resolution{Mode: ModeInvalid}, nil
	}
}

// executePanic runs the destructive wipe and then regenerates an unusable
// credential shell, so later behavior is indistinguishable from a failed
// login. It cannot be aborted once started; the first error is reported
// after the whole sequence ran.
func (r *Resolver) executePanic() (Resolution, error) {
	r.audit("panic wipe started")
	var firstErr error
	if r.onPanic != nil {
		if err := r.onPanic(); err != nil {
			firstErr = err
			r.logger.Error("panic wipe incomplete", zap.Error(err))
		}
	}
	// The store file is scrubbed from disk before the replacement shell is
	// written, so the old salts and key wraps are not recoverable from
	// freed blocks.
	if err := r.eraser.Erase(r.store.Path()); err != nil {
		if firstErr == nil {
			firstErr = err
		}
		r.logger.Error("credential store wipe failed", zap.Error(err))
	}
	if err := r.store.Regenerate(r.store.Master.Iterations); err != nil && firstErr == nil {
		firstErr = err
	}
	r.audit("panic wipe finished")
	return Resolution{Mode: ModePanic}, firstErr
}

// TriggerPanic runs the destruction sequence directly, gated on the master
// password. This is the explicit destroy action; entering the panic password
// at unlock reaches the same sequence. Escalation does not block it.
func (r *Resolver) TriggerPanic(candidate []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ok, derived, err := r.store.Master.verify(candidate)
	if err != nil {
		return err
	}
	crypto.Zero(derived)
	if !ok {
		return errors.New("credential: master password does not verify")
	}
	_, err = r.executePanic()
	return err
}

// ResetLockout clears the counter and the decoy escalation. Explicit
// administrative action; a master unlock alone does not clear escalation.
func (r *Resolver) ResetLockout() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.lockout.SetFailedAttempts(0); err != nil {
		return err
	}
	if err := r.lockout.SetEscalated(false); err != nil {
		return err
	}
	r.audit("lockout reset")
	return nil
}

func (r *Resolver) audit(summary string) {
	if r.log == nil {
		return
	}
	if _, err := r.log.Append("credential", summary); err != nil {
		r.logger.Error("audit append failed", zap.Error(err))
	}
}
