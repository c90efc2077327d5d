package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/audit-engine/internal/config"
	"github.com/sells-group/audit-engine/internal/model"
	"github.com/sells-group/audit-engine/internal/store"
)

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestRegistry(t *testing.T, policy SeedPolicy) (*Registry, store.KV) {
	t.Helper()
	kv := store.NewMemory()
	return New(kv, config.RegistryConfig{SeedPolicy: string(policy), RecentSearchCap: 10}), kv
}

func pendingClaims(n int) []model.Claim {
	out := make([]model.Claim, n)
	for i := range out {
		out[i] = model.NewPendingClaim("@AkshatZayn", model.Video{Title: "t"}, "00:00", "q", "s", "a")
	}
	return out
}

func TestRecentSearches_Empty(t *testing.T) {
	r, _ := newTestRegistry(t, SeedOff)
	list, err := r.RecentSearches(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestAddRecentSearch_DedupeFrontAndCap(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, SeedOff)

	for i := range 12 {
		require.NoError(t, r.AddRecentSearch(ctx, model.RecentSearch{ID: fmt.Sprintf("@c%d", i), Name: "n"}))
	}
	list, err := r.RecentSearches(ctx)
	require.NoError(t, err)
	require.Len(t, list, 10)
	assert.Equal(t, "@c11", list[0].ID)
	assert.Equal(t, "@c2", list[9].ID)

	require.NoError(t, r.AddRecentSearch(ctx, model.RecentSearch{ID: "@c5", Name: "renamed"}))
	list, err = r.RecentSearches(ctx)
	require.NoError(t, err)
	require.Len(t, list, 10)
	assert.Equal(t, model.RecentSearch{ID: "@c5", Name: "renamed"}, list[0])
	count := 0
	for _, e := range list {
		if e.ID == "@c5" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestAddRecentSearch_Idempotent(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, SeedOff)
	e := model.RecentSearch{ID: "@AkshatZayn", Name: "Akshat", Avatar: "a"}

	require.NoError(t, r.AddRecentSearch(ctx, model.RecentSearch{ID: "@other"}))
	require.NoError(t, r.AddRecentSearch(ctx, e))
	first, err := r.RecentSearches(ctx)
	require.NoError(t, err)
	require.NoError(t, r.AddRecentSearch(ctx, e))
	second, err := r.RecentSearches(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Error(t, r.AddRecentSearch(ctx, model.RecentSearch{}))
}

func TestRecordAudit(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, SeedOff)

	s, err := r.RecordAudit(ctx, "@AkshatZayn", pendingClaims(5), testNow)
	require.NoError(t, err)
	assert.Equal(t, model.AuditSummary{Count: 5, LastAudited: "2024-03-01", Status: model.AuditStatusAudited}, s)

	hist, err := r.AuditHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, hist["@AkshatZayn"].Count)

	// Later writes overwrite; the bare form maps to the same entry.
	_, err = r.RecordAudit(ctx, "AkshatZayn", nil, testNow.AddDate(0, 0, 1))
	require.NoError(t, err)
	got, err := r.AuditSummary(ctx, "@AkshatZayn")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.AuditSummary{Count: 0, LastAudited: "2024-03-02", Status: model.AuditStatusNoClaims}, *got)

	hist, err = r.AuditHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	missing, err := r.AuditSummary(ctx, "@nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBuiltinSeed(t *testing.T) {
	ds, err := BuiltinSeed()
	require.NoError(t, err)
	require.Len(t, ds, 3)

	rec := ds["AkshatZayn"]
	assert.Equal(t, "@AkshatZayn", rec.Creator.Handle)
	assert.Equal(t, "Akshat Shrivastava", rec.Creator.Name)
	require.NotEmpty(t, rec.Claims)
	for _, recs := range ds {
		for _, c := range recs.Claims {
			assert.Equal(t, recs.Creator.Handle, c.CreatorHandle)
			assert.True(t, c.Status.IsVerification(), c.ID)
			assert.GreaterOrEqual(t, c.Score, 0.0)
			assert.LessOrEqual(t, c.Score, 1.0)
			assert.NotNil(t, c.MarketData)
		}
	}
}

func TestParseSeed_Invalid(t *testing.T) {
	_, err := ParseSeed([]byte("foo: [unclosed"))
	assert.Error(t, err)

	_, err = ParseSeed([]byte("foo:\n  creator:\n    name: Foo\n    handle: \"@bar\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")

	_, err = ParseSeed([]byte("foo:\n  creator:\n    handle: \"@foo\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no creator name")

	_, err = ParseSeed([]byte("foo:\n  creator:\n    name: Foo\n    handle: \"@foo\"\n  claims:\n    - id: x\n      status: Maybe\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("x:\n  creator:\n    name: X\n    handle: \"@x\"\n"), 0o600))
	ds, err := LoadSeedFile(path)
	require.NoError(t, err)
	assert.Equal(t, "X", ds["x"].Creator.Name)

	_, err = LoadSeedFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSeed_IfEmpty(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, SeedIfEmpty)

	seeded, err := r.Seed(ctx, testNow)
	require.NoError(t, err)
	assert.True(t, seeded)

	recent, err := r.RecentSearches(ctx)
	require.NoError(t, err)
	assert.Len(t, recent, 3)
	hist, err := r.AuditHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.AuditStatusSeeded, hist["@AkshatZayn"].Status)
	assert.Equal(t, 3, hist["@AkshatZayn"].Count)
	assert.Equal(t, "2024-03-01", hist["@CARachanaRanade"].LastAudited)
	last, err := r.LastSeedRefresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", last)

	rec, err := r.SeededAudit(ctx, "@udayanadhye")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Udayan Adhye", rec.Creator.Name)
	rec, err = r.SeededAudit(ctx, "udayanadhye")
	require.NoError(t, err)
	require.NotNil(t, rec)

	// History exists now, so a second startup does nothing.
	seeded, err = r.Seed(ctx, testNow.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.False(t, seeded)
	last, err = r.LastSeedRefresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", last)
}

func TestSeed_IfEmptySkipsWhenAudited(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, SeedIfEmpty)
	_, err := r.RecordAudit(ctx, "@someone", pendingClaims(1), testNow)
	require.NoError(t, err)

	seeded, err := r.Seed(ctx, testNow)
	require.NoError(t, err)
	assert.False(t, seeded)
	all, err := r.SeededAudits(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSeed_AlwaysRefreshesDateAndKeepsOthers(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, SeedAlways)

	_, err := r.RecordAudit(ctx, "@PranjalKamra", pendingClaims(2), testNow)
	require.NoError(t, err)
	require.NoError(t, r.AddRecentSearch(ctx, model.RecentSearch{ID: "@PranjalKamra", Name: "Pranjal"}))

	_, err = r.Seed(ctx, testNow)
	require.NoError(t, err)
	seeded, err := r.Seed(ctx, testNow.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.True(t, seeded)

	hist, err := r.AuditHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-04-01", hist["@AkshatZayn"].LastAudited)
	assert.Equal(t, 2, hist["@PranjalKamra"].Count)

	recent, err := r.RecentSearches(ctx)
	require.NoError(t, err)
	assert.Len(t, recent, 4)
	assert.Equal(t, "@PranjalKamra", recent[3].ID)
}

func TestSeed_Off(t *testing.T) {
	r, kv := newTestRegistry(t, SeedOff)
	seeded, err := r.Seed(context.Background(), testNow)
	require.NoError(t, err)
	assert.False(t, seeded)
	v, err := kv.Get(context.Background(), KeySeededAudits)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSeed_UnknownPolicy(t *testing.T) {
	r, _ := newTestRegistry(t, SeedPolicy("sometimes"))
	_, err := r.Seed(context.Background(), testNow)
	assert.Error(t, err)
}

type failingKV struct {
	*store.MemoryStore
}

func (failingKV) SetMany(context.Context, map[string][]byte) error {
	return errors.New("quota exceeded")
}

func TestSeed_FailureFailsWholeSeed(t *testing.T) {
	ctx := context.Background()
	kv := failingKV{store.NewMemory()}
	r := New(kv, config.RegistryConfig{SeedPolicy: "always"})

	_, err := r.Seed(ctx, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	recent, err := r.RecentSearches(ctx)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestNew_Defaults(t *testing.T) {
	r := New(store.NewMemory(), config.RegistryConfig{})
	assert.Equal(t, 10, r.recentCap)
	assert.Equal(t, SeedIfEmpty, r.policy)
}
