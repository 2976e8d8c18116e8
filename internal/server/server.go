// Package server exposes the vault over a loopback HTTP API. Unlock trades
// a password for a bearer token; every other endpoint requires one. The
// API never discloses which mode an unlock resolved to.
package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/PathanWasim/GhostVault-sub002/internal/auth"
	"github.com/PathanWasim/GhostVault-sub002/internal/core"
	"github.com/PathanWasim/GhostVault-sub002/internal/platform"
	"github.com/PathanWasim/GhostVault-sub002/internal/vault"
)

const signingSeedID = "vaultd-signing-seed"

type Server struct {
	app    *core.App
	mux    *http.ServeMux
	signer *auth.TokenSigner
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*vault.Session

	rlUnlockIP *multiLimiter
}

// New wires the API over an opened vault stack. The token signing seed
// lives in the OS keychain; when the keychain is unavailable an ephemeral
// seed is used and sessions do not survive a restart.
func New(app *core.App, kc platform.Keychain, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	seed, err := kc.Load(signingSeedID)
	if err != nil || len(seed) == 0 {
		seed, err = auth.GenerateSeed()
		if err != nil {
			return nil, err
		}
		if err := kc.Store(signingSeedID, seed); err != nil {
			logger.Warn("keychain unavailable, using ephemeral signing seed", zap.Error(err))
		}
	}
	signer, err := auth.SignerFromSeed(seed, "ghostvault-daemon", app.Cfg.SessionTTL)
	if err != nil {
		return nil, err
	}

	s := &Server{
		app:      app,
		mux:      http.NewServeMux(),
		signer:   signer,
		logger:   logger,
		sessions: map[string]*vault.Session{},
		// Same shape as the resolver's own throttle, keyed by client so one
		// noisy caller cannot starve the rest of loopback.
		rlUnlockIP: newMultiLimiter(rate.Limit(10.0/60.0), 5, time.Hour),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/unlock", s.handleUnlock)
	s.mux.HandleFunc("/api/lock", s.handleLock)
	s.mux.HandleFunc("/api/items", s.handleItems)
	s.mux.HandleFunc("/api/items/", s.handleItemByID)
	s.mux.HandleFunc("/api/strength", s.handleStrength)
	s.mux.HandleFunc("/api/validate", s.handleValidate)
	s.mux.HandleFunc("/api/audit", s.handleAudit)
	s.mux.HandleFunc("/api/lockout/reset", s.handleResetLockout)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("handler panic", zap.Any("panic", rec))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}()

	if strings.HasPrefix(r.URL.Path, "/api/") {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	if s.isPublic(r.URL.Path) {
		s.mux.ServeHTTP(w, r)
		return
	}
	auth.AuthRequired(s.signer)(s.mux).ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler { return s }

func (s *Server) isPublic(path string) bool {
	switch path {
	case "/health", "/api/unlock", "/api/strength":
		return true
	default:
		return false
	}
}

// session resolves the claims attached by the auth middleware to the live
// vault session, or nil when it was revoked or never existed.
func (s *Server) session(r *http.Request) *vault.Session {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[claims.SessionID]
}

func (s *Server) trackSession(sess *vault.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A new unlock revokes every earlier session inside the vault; drop the
	// stale handles so lookups fail fast.
	for id := range s.sessions {
		delete(s.sessions, id)
	}
	s.sessions[sess.ID()] = sess
}

func (s *Server) dropSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}
