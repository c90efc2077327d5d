// Package registry persists recent searches, per-creator audit summaries
// and canned demo audits on top of a store.KV.
package registry

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/audit-engine/internal/config"
	"github.com/sells-group/audit-engine/internal/model"
	"github.com/sells-group/audit-engine/internal/store"
)

// Persistence keys.
const (
	KeyRecentSearches  = "recent_searches"
	KeyAuditHistory    = "audit_history"
	KeySeededAudits    = "seeded_audits"
	KeyLastSeedRefresh = "last_seed_refresh"
)

const (
	dateLayout       = "2006-01-02"
	defaultRecentCap = 10
)

// Registry is the local audit registry.
type Registry struct {
	kv        store.KV
	recentCap int
	policy    SeedPolicy

	// mu serializes read-modify-write cycles within this process.
	mu sync.Mutex
}

// New creates a Registry over kv.
func New(kv store.KV, cfg config.RegistryConfig) *Registry {
	r := &Registry{kv: kv, recentCap: cfg.RecentSearchCap, policy: SeedPolicy(cfg.SeedPolicy)}
	if r.recentCap <= 0 {
		r.recentCap = defaultRecentCap
	}
	if r.policy == "" {
		r.policy = SeedIfEmpty
	}
	return r
}

// RecentSearches returns the recent list, most recent first.
func (r *Registry) RecentSearches(ctx context.Context) ([]model.RecentSearch, error) {
	list, _, err := store.GetJSON[[]model.RecentSearch](ctx, r.kv, KeyRecentSearches)
	if err != nil {
		return nil, eris.Wrap(err, "registry: load recent searches")
	}
	if list == nil {
		list = []model.RecentSearch{}
	}
	return list, nil
}

// AddRecentSearch moves entry to the front of the recent list, dropping any
// older entry with the same handle and trimming to the cap. Adding the same
// entry twice leaves the list unchanged.
func (r *Registry) AddRecentSearch(ctx context.Context, entry model.RecentSearch) error {
	if entry.ID == "" {
		return eris.New("registry: recent search needs a handle")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.RecentSearches(ctx)
	if err != nil {
		return err
	}
	return r.writeRecent(ctx, mergeRecent([]model.RecentSearch{entry}, list, r.recentCap))
}

func (r *Registry) writeRecent(ctx context.Context, list []model.RecentSearch) error {
	return eris.Wrap(store.SetJSON(ctx, r.kv, KeyRecentSearches, list), "registry: save recent searches")
}

// mergeRecent puts front ahead of rest, keeping the first entry per handle.
func mergeRecent(front, rest []model.RecentSearch, limit int) []model.RecentSearch {
	out := make([]model.RecentSearch, 0, limit)
	seen := make(map[string]bool, len(front)+len(rest))
	for _, e := range slices.Concat(front, rest) {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out
}

// AuditHistory returns every audit summary keyed by "@handle".
func (r *Registry) AuditHistory(ctx context.Context) (map[string]model.AuditSummary, error) {
	hist, _, err := store.GetJSON[map[string]model.AuditSummary](ctx, r.kv, KeyAuditHistory)
	if err != nil {
		return nil, eris.Wrap(err, "registry: load audit history")
	}
	if hist == nil {
		hist = map[string]model.AuditSummary{}
	}
	return hist, nil
}

// AuditSummary returns the summary for handle, accepted with or without "@".
func (r *Registry) AuditSummary(ctx context.Context, handle string) (*model.AuditSummary, error) {
	hist, err := r.AuditHistory(ctx)
	if err != nil {
		return nil, err
	}
	s, ok := hist[model.AtHandle(handle)]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// RecordAudit overwrites the summary for handle. Count is len(claims).
func (r *Registry) RecordAudit(ctx context.Context, handle string, claims []model.Claim, now time.Time) (model.AuditSummary, error) {
	if handle == "" {
		return model.AuditSummary{}, eris.New("registry: audit needs a handle")
	}
	summary := model.AuditSummary{
		Count:       len(claims),
		LastAudited: now.Format(dateLayout),
		Status:      model.AuditStatusAudited,
	}
	if len(claims) == 0 {
		summary.Status = model.AuditStatusNoClaims
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	hist, err := r.AuditHistory(ctx)
	if err != nil {
		return model.AuditSummary{}, err
	}
	hist[model.AtHandle(handle)] = summary
	if err := store.SetJSON(ctx, r.kv, KeyAuditHistory, hist); err != nil {
		return model.AuditSummary{}, eris.Wrap(err, "registry: save audit history")
	}

	zap.L().Debug("registry: audit recorded",
		zap.String("handle", model.AtHandle(handle)),
		zap.Int("count", summary.Count),
	)
	return summary, nil
}

// SeededAudits returns all canned records keyed by bare handle.
func (r *Registry) SeededAudits(ctx context.Context) (Dataset, error) {
	ds, _, err := store.GetJSON[Dataset](ctx, r.kv, KeySeededAudits)
	if err != nil {
		return nil, eris.Wrap(err, "registry: load seeded audits")
	}
	if ds == nil {
		ds = Dataset{}
	}
	return ds, nil
}

// SeededAudit returns the canned record for handle, or nil when none exists.
func (r *Registry) SeededAudit(ctx context.Context, handle string) (*model.SeededAudit, error) {
	ds, err := r.SeededAudits(ctx)
	if err != nil {
		return nil, err
	}
	rec, ok := ds[model.BareHandle(handle)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// LastSeedRefresh returns the date of the last seeding, or "".
func (r *Registry) LastSeedRefresh(ctx context.Context) (string, error) {
	d, _, err := store.GetJSON[string](ctx, r.kv, KeyLastSeedRefresh)
	return d, eris.Wrap(err, "registry: load last seed refresh")
}

// Seed applies the configured policy with the built-in dataset. It reports
// whether anything was written.
func (r *Registry) Seed(ctx context.Context, now time.Time) (bool, error) {
	switch r.policy {
	case SeedOff:
		return false, nil
	case SeedIfEmpty:
		hist, err := r.AuditHistory(ctx)
		if err != nil {
			return false, err
		}
		if len(hist) > 0 {
			zap.L().Debug("registry: audit history present, skipping seed")
			return false, nil
		}
	case SeedAlways:
	default:
		return false, eris.Errorf("registry: unknown seed policy %q", r.policy)
	}

	ds, err := BuiltinSeed()
	if err != nil {
		return false, err
	}
	if err := r.SeedWith(ctx, ds, now); err != nil {
		return false, err
	}
	return true, nil
}

// SeedWith writes ds into all three collections in a single SetMany,
// regardless of policy. Existing entries for other handles are kept.
func (r *Registry) SeedWith(ctx context.Context, ds Dataset, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	recent, err := r.RecentSearches(ctx)
	if err != nil {
		return err
	}
	hist, err := r.AuditHistory(ctx)
	if err != nil {
		return err
	}
	seeded, err := r.SeededAudits(ctx)
	if err != nil {
		return err
	}

	today := now.Format(dateLayout)
	keys := make([]string, 0, len(ds))
	for k := range ds {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	front := make([]model.RecentSearch, 0, len(keys))
	for _, k := range keys {
		rec := ds[k]
		handle := model.AtHandle(rec.Creator.Handle)
		front = append(front, model.RecentSearch{ID: handle, Name: rec.Creator.Name, Avatar: rec.Creator.Avatar})
		hist[handle] = model.AuditSummary{
			Count:       len(rec.Claims),
			LastAudited: today,
			Status:      model.AuditStatusSeeded,
		}
		seeded[k] = rec
	}

	entries := make(map[string][]byte, 4)
	for key, v := range map[string]any{
		KeyRecentSearches:  mergeRecent(front, recent, r.recentCap),
		KeyAuditHistory:    hist,
		KeySeededAudits:    seeded,
		KeyLastSeedRefresh: today,
	} {
		raw, err := json.Marshal(v)
		if err != nil {
			return eris.Wrapf(err, "registry: encode %s", key)
		}
		entries[key] = raw
	}
	if err := r.kv.SetMany(ctx, entries); err != nil {
		return eris.Wrap(err, "registry: seed")
	}

	zap.L().Info("registry: seeded demo audits",
		zap.Int("creators", len(ds)),
		zap.String("policy", string(r.policy)),
		zap.String("date", today),
	)
	return nil
}
