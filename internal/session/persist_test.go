package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/audit-engine/internal/config"
	"github.com/sells-group/audit-engine/internal/lifecycle"
	"github.com/sells-group/audit-engine/internal/registry"
	"github.com/sells-group/audit-engine/internal/store"
)

func newSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// serveTimeouts mirrors the class timeouts serve runs with.
var serveTimeouts = map[lifecycle.Class]time.Duration{
	lifecycle.ClassResolve: 90 * time.Second,
	lifecycle.ClassExtract: 120 * time.Second,
	lifecycle.ClassVerify:  90 * time.Second,
}

func newPersistentFixture(t *testing.T, kv store.KV) *fixture {
	t.Helper()
	f := &fixture{
		res: &mockResolver{},
		ext: &mockExtractor{},
		ver: &mockVerifier{},
		reg: registry.New(kv, config.RegistryConfig{SeedPolicy: "off", RecentSearchCap: 10}),
	}
	f.s = New("sqlite", Deps{
		Resolver:  f.res,
		Extractor: f.ext,
		Verifier:  f.ver,
		Registry:  f.reg,
		Timeouts:  serveTimeouts,
		Now:       func() time.Time { return testNow },
	})
	return f
}

func TestSession_PersistsToSQLiteWithTimeouts(t *testing.T) {
	f := newPersistentFixture(t, newSQLiteStore(t))
	ctx := context.Background()
	f.res.On("Resolve", mock.Anything, "akshat").Return(testChannel(), nil)
	f.ext.On("Extract", mock.Anything, "Nifty outlook", mock.Anything).Return(extracted(5), nil)

	_, err := f.s.Search(ctx, "akshat")
	require.NoError(t, err)

	recent, err := f.reg.RecentSearches(ctx)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "@AkshatZayn", recent[0].ID)

	_, err = f.s.Confirm(ctx)
	require.NoError(t, err)

	res, err := f.s.AuditVideo(ctx, "v-0-1")
	require.NoError(t, err)
	require.NotNil(t, res.Summary)
	assert.Equal(t, 5, res.Summary.Count)

	hist, err := f.reg.AuditHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, hist["@AkshatZayn"].Count)

	p, err := f.s.Profile(ctx)
	require.NoError(t, err)
	require.NotNil(t, p.Summary)
	assert.Equal(t, 5, p.Summary.Count)
}

func TestAuditVideo_RegistryFailureKeepsClaims(t *testing.T) {
	st := newSQLiteStore(t)
	f := newPersistentFixture(t, st)
	ctx := context.Background()
	f.res.On("Resolve", mock.Anything, "akshat").Return(testChannel(), nil)
	f.ext.On("Extract", mock.Anything, "Nifty outlook", mock.Anything).Return(extracted(2), nil)

	_, err := f.s.Search(ctx, "akshat")
	require.NoError(t, err)
	_, err = f.s.Confirm(ctx)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	res, err := f.s.AuditVideo(ctx, "v-0-1")
	require.NoError(t, err)
	assert.Len(t, res.Claims, 2)
	assert.Nil(t, res.Summary)
	assert.True(t, res.Video.ClaimsExtracted)
	last := res.Log[len(res.Log)-1]
	assert.Equal(t, LogError, last.Type)
	assert.Contains(t, last.Msg, "Could not save audit history")

	claims, err := f.s.Claims(SortTimeline)
	require.NoError(t, err)
	assert.Len(t, claims, 2)
}
