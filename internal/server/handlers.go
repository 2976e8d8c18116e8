package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PathanWasim/GhostVault-sub002/internal/storage"
	"github.com/PathanWasim/GhostVault-sub002/internal/strength"
	"github.com/PathanWasim/GhostVault-sub002/internal/vault"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type unlockReq struct {
	Password string `json:"password"`
}

type unlockResp struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.rlUnlockIP.allow(getClientIP(r)) {
		tooMany(w, 60)
		return
	}
	var req unlockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	sess, err := s.app.Vault.Unlock([]byte(req.Password))
	if err != nil {
		// Wrong password, panic and destroyed vault all look identical here.
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}
	s.trackSession(sess)

	token, exp, err := s.signer.IssueToken(sess.ID())
	if err != nil {
		s.logger.Error("token issue failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, unlockResp{Token: token, ExpiresAt: exp})
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess := s.session(r)
	if sess == nil {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	s.app.Vault.Lock(sess)
	s.dropSession(sess.ID())
	w.WriteHeader(http.StatusNoContent)
}

type itemReq struct {
	Data []byte          `json:"data"`
	Meta json.RawMessage `json:"meta"`
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	if sess == nil {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	switch r.Method {
	case http.MethodGet:
		metas, err := s.app.Vault.List(sess)
		if err != nil {
			s.vaultError(w, err)
			return
		}
		if metas == nil {
			metas = []storage.ItemMeta{}
		}
		writeJSON(w, metas)
	case http.MethodPost:
		var req itemReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		id, err := s.app.Vault.EncryptAndStore(r.Context(), sess, req.Data, req.Meta)
		if err != nil {
			s.vaultError(w, err)
			return
		}
		writeJSONStatus(w, http.StatusCreated, map[string]string{"id": id})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleItemByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/items/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	sess := s.session(r)
	if sess == nil {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	switch r.Method {
	case http.MethodGet:
		data, meta, err := s.app.Vault.RetrieveAndDecrypt(r.Context(), sess, id)
		if err != nil {
			s.vaultError(w, err)
			return
		}
		writeJSON(w, itemReq{Data: data, Meta: meta})
	case http.MethodDelete:
		if err := s.app.Vault.SecureDelete(sess, id); err != nil {
			s.vaultError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStrength(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req unlockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	res := strength.Score(req.Password)
	writeJSON(w, map[string]any{
		"level":      res.Level.String(),
		"score":      res.Score,
		"feedback":   res.Feedback,
		"acceptable": res.Acceptable(),
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.session(r) == nil {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	report := s.app.Validator().Run()
	writeJSON(w, report)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.session(r) == nil {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	verifyErr := ""
	if err := s.app.Audit.Verify(); err != nil {
		verifyErr = err.Error()
	}
	writeJSON(w, map[string]any{
		"entries":      s.app.Audit.Entries(),
		"chain_intact": verifyErr == "",
		"chain_error":  verifyErr,
	})
}

func (s *Server) handleResetLockout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.session(r) == nil {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	if err := s.app.Vault.ResetLockout(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) vaultError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vault.ErrAuthentication):
		http.Error(w, "authentication failed", http.StatusUnauthorized)
	case errors.Is(err, vault.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		s.logger.Error("vault operation failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
