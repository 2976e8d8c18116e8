// Package validate audits the on-disk vault configuration and produces a
// findings report. Strictly read-only.
package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/PathanWasim/GhostVault-sub002/internal/audit"
	"github.com/PathanWasim/GhostVault-sub002/internal/config"
	"github.com/PathanWasim/GhostVault-sub002/internal/credential"
	"github.com/PathanWasim/GhostVault-sub002/internal/crypto"
	"github.com/PathanWasim/GhostVault-sub002/internal/storage"
	"github.com/PathanWasim/GhostVault-sub002/internal/vault"
)

type Level int

const (
	LevelOK Level = iota
	LevelInfo
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelOK:
		return "ok"
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	}
	return "unknown"
}

// Finding is one graded audit observation. Findings are informational
// output, not errors.
type Finding struct {
	Level    Level
	Category string
	Issues   []string
	Details  string
}

type Report struct {
	OverallLevel    Level
	Findings        []Finding
	Recommendations []string
}

type Validator struct {
	cfg     config.Config
	index   *storage.Index
	genuine storage.BlobStore
	decoy   storage.BlobStore
	log     *audit.Log
}

func New(cfg config.Config, index *storage.Index, genuine, decoy storage.BlobStore, log *audit.Log) *Validator {
	return &Validator{cfg: cfg, index: index, genuine: genuine, decoy: decoy, log: log}
}

// Run walks every check and grades the result. Nothing is mutated.
func (v *Validator) Run() Report {
	var r Report
	v.checkCredentials(&r)
	v.checkLegacyRemnants(&r)
	v.checkItems(&r, storage.KindGenuine, v.genuine, "items")
	v.checkItems(&r, storage.KindDecoy, v.decoy, "decoy items")
	v.checkAuditChain(&r)
	v.checkConfig(&r)

	for _, f := range r.Findings {
		if f.Level > r.OverallLevel {
			r.OverallLevel = f.Level
		}
	}
	return r
}

func (v *Validator) checkCredentials(r *Report) {
	s, err := credential.Load(v.cfg.CredentialPath())
	if err == credential.ErrNoStore {
		r.Findings = append(r.Findings, Finding{
			Level:    LevelCritical,
			Category: "credentials",
			Issues:   []string{"credential store missing"},
		})
		r.Recommendations = append(r.Recommendations, "initialize the vault or run migration")
		return
	}
	if err != nil {
		r.Findings = append(r.Findings, Finding{
			Level:    LevelCritical,
			Category: "credentials",
			Issues:   []string{"credential store unreadable"},
			Details:  err.Error(),
		})
		return
	}

	var issues []string
	records := map[string]credential.Record{"master": s.Master, "panic": s.Panic, "decoy": s.Decoy}
	seenSalts := make(map[string]string)
	level := LevelOK
	for name, rec := range records {
		if len(rec.Salt) != crypto.SaltSize || len(rec.Hash) == 0 {
			issues = append(issues, fmt.Sprintf("%s record malformed", name))
			level = LevelCritical
		}
		if rec.Iterations < crypto.MinIterations {
			issues = append(issues, fmt.Sprintf("%s record iteration count %d below floor", name, rec.Iterations))
			level = maxLevel(level, LevelWarning)
		}
		if prior, dup := seenSalts[string(rec.Salt)]; dup {
			issues = append(issues, fmt.Sprintf("%s and %s share a salt", prior, name))
			level = LevelCritical
		}
		seenSalts[string(rec.Salt)] = name
	}
	if s.Master.KeyWrap == nil || s.Master.DecoyKeyWrap == nil {
		issues = append(issues, "master record has no wrapped keys; vault shell is unusable")
		level = maxLevel(level, LevelWarning)
	}
	if len(issues) > 0 {
		r.Findings = append(r.Findings, Finding{Level: level, Category: "credentials", Issues: issues})
		if level >= LevelWarning {
			r.Recommendations = append(r.Recommendations, "re-run credential setup with current parameters")
		}
		return
	}
	r.Findings = append(r.Findings, Finding{Level: LevelOK, Category: "credentials"})
}

func (v *Validator) checkLegacyRemnants(r *Report) {
	var issues []string
	for _, path := range []string{v.cfg.LegacyCredentialPath(), v.cfg.LegacyMetadataPath()} {
		if _, err := os.Stat(path); err == nil {
			issues = append(issues, "plaintext artifact present: "+path)
		}
	}
	if entries, err := os.ReadDir(v.cfg.LegacyFilesDir()); err == nil && len(entries) > 0 {
		issues = append(issues, "unencrypted files directory present")
	}
	// A completed migration seals its archive into the vault; any .gvbak
	// left on disk carries the legacy secrets in cleartext.
	if entries, err := os.ReadDir(v.cfg.BackupDir()); err == nil {
		for _, e := range entries {
			if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".gvbak") {
				issues = append(issues, "plaintext backup archive present: "+e.Name())
			}
		}
	}
	if len(issues) > 0 {
		r.Findings = append(r.Findings, Finding{Level: LevelCritical, Category: "remnants", Issues: issues})
		r.Recommendations = append(r.Recommendations, "run migration to encrypt and wipe legacy plaintext state; securely delete any leftover backup archives once their content is verified in the vault")
		return
	}
	r.Findings = append(r.Findings, Finding{Level: LevelOK, Category: "remnants"})
}

func (v *Validator) checkItems(r *Report, kind storage.ItemKind, store storage.BlobStore, category string) {
	ctx := context.Background()
	ids, err := store.List(ctx)
	if err != nil {
		r.Findings = append(r.Findings, Finding{
			Level: LevelWarning, Category: category,
			Issues:  []string{"item store unreadable"},
			Details: err.Error(),
		})
		return
	}
	metas, err := v.index.ListItemMeta(kind)
	if err != nil {
		r.Findings = append(r.Findings, Finding{
			Level: LevelWarning, Category: category,
			Issues:  []string{"item index unreadable"},
			Details: err.Error(),
		})
		return
	}

	indexed := make(map[string]bool, len(metas))
	for _, m := range metas {
		indexed[m.ID] = true
	}
	stored := make(map[string]bool, len(ids))
	var issues []string
	for _, id := range ids {
		stored[id] = true
		blob, err := store.Get(ctx, id)
		if err != nil {
			issues = append(issues, "unreadable blob "+id)
			continue
		}
		var it vault.Item
		if err := json.Unmarshal(blob, &it); err != nil || it.ID != id ||
			len(it.IV) != crypto.IVSize || len(it.Tag) != crypto.TagSize {
			issues = append(issues, "malformed blob "+id)
			continue
		}
		if !indexed[id] {
			issues = append(issues, "blob not indexed: "+id)
		}
	}
	for _, m := range metas {
		if !stored[m.ID] {
			issues = append(issues, "indexed item missing blob: "+m.ID)
		}
	}

	if len(issues) > 0 {
		r.Findings = append(r.Findings, Finding{Level: LevelWarning, Category: category, Issues: issues})
		r.Recommendations = append(r.Recommendations, "inspect "+category+" for corruption; restore from backup if needed")
		return
	}
	r.Findings = append(r.Findings, Finding{Level: LevelOK, Category: category})
}

func (v *Validator) checkAuditChain(r *Report) {
	if v.log == nil {
		return
	}
	if err := v.log.Verify(); err != nil {
		r.Findings = append(r.Findings, Finding{
			Level: LevelCritical, Category: "audit",
			Issues:  []string{"audit chain broken"},
			Details: err.Error(),
		})
		r.Recommendations = append(r.Recommendations, "treat the audit log as tampered; rotate it and investigate")
		return
	}
	r.Findings = append(r.Findings, Finding{Level: LevelOK, Category: "audit"})
}

func (v *Validator) checkConfig(r *Report) {
	var issues []string
	if v.cfg.WipePasses < 3 {
		issues = append(issues, fmt.Sprintf("wipe passes %d below the 3-pass standard", v.cfg.WipePasses))
	}
	if !strings.HasPrefix(v.cfg.Listen, "127.0.0.1:") && !strings.HasPrefix(v.cfg.Listen, "localhost:") {
		issues = append(issues, "daemon listen address is not loopback")
	}
	if len(issues) > 0 {
		r.Findings = append(r.Findings, Finding{Level: LevelInfo, Category: "config", Issues: issues})
		r.Recommendations = append(r.Recommendations, "review configuration hardening settings")
		return
	}
	r.Findings = append(r.Findings, Finding{Level: LevelOK, Category: "config"})
}

func maxLevel(a, b Level) Level {
	if b > a {
		return b
	}
	return a
}
