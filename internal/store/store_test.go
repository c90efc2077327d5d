package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/audit-engine/internal/config"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := NewRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st, mr
}

// backends runs the KV contract against every backend that needs no
// external server.
func backends(t *testing.T) map[string]KV {
	rs, _ := newTestRedisStore(t)
	return map[string]KV{
		"memory": NewMemory(),
		"sqlite": newTestSQLiteStore(t),
		"redis":  rs,
	}
}

func TestKV_Contract(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			v, err := kv.Get(ctx, "missing")
			require.NoError(t, err)
			assert.Nil(t, v)

			require.NoError(t, kv.Set(ctx, "a", []byte(`{"x":1}`)))
			v, err = kv.Get(ctx, "a")
			require.NoError(t, err)
			assert.JSONEq(t, `{"x":1}`, string(v))

			require.NoError(t, kv.Set(ctx, "a", []byte(`{"x":2}`)))
			v, err = kv.Get(ctx, "a")
			require.NoError(t, err)
			assert.JSONEq(t, `{"x":2}`, string(v), "later writes overwrite")

			require.NoError(t, kv.SetMany(ctx, map[string][]byte{
				"b": []byte(`[1,2]`),
				"c": []byte(`"2024-03-01"`),
			}))
			v, err = kv.Get(ctx, "b")
			require.NoError(t, err)
			assert.JSONEq(t, `[1,2]`, string(v))
			v, err = kv.Get(ctx, "c")
			require.NoError(t, err)
			assert.JSONEq(t, `"2024-03-01"`, string(v))

			require.NoError(t, kv.Remove(ctx, "a"))
			v, err = kv.Get(ctx, "a")
			require.NoError(t, err)
			assert.Nil(t, v)

			require.NoError(t, kv.Remove(ctx, "never-set"))
		})
	}
}

func TestGetSetJSON(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()

	type entry struct {
		Count int    `json:"count"`
		Name  string `json:"name"`
	}

	_, found, err := GetJSON[entry](ctx, kv, "e")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, SetJSON(ctx, kv, "e", entry{Count: 5, Name: "x"}))
	got, found, err := GetJSON[entry](ctx, kv, "e")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, entry{Count: 5, Name: "x"}, got)

	require.NoError(t, kv.Set(ctx, "bad", []byte("{not json")))
	_, _, err = GetJSON[entry](ctx, kv, "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store: decode bad")
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	in := []byte("abc")
	require.NoError(t, kv.Set(ctx, "k", in))
	in[0] = 'z'

	out, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(out))
	out[0] = 'y'

	again, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.db")

	st, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.Set(ctx, "recent_searches", []byte(`[]`)))
	require.NoError(t, st.Close())

	st, err = NewSQLite(path)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))
	v, err := st.Get(ctx, "recent_searches")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(v))
}

func TestRedis_KeysArePrefixedAndPersistent(t *testing.T) {
	ctx := context.Background()
	st, mr := newTestRedisStore(t)

	require.NoError(t, st.Set(ctx, "audit_history", []byte(`{}`)))
	assert.True(t, mr.Exists("audit:audit_history"))
	assert.Zero(t, mr.TTL("audit:audit_history"))
}

func TestRedis_Unreachable(t *testing.T) {
	_, err := NewRedis(context.Background(), "redis://127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: ping")

	_, err = NewRedis(context.Background(), "not a url")
	require.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	kv, err := Open(ctx, config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, kv)

	kv, err = Open(ctx, config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "a.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, kv)
	require.NoError(t, kv.Set(ctx, "k", []byte(`1`)), "migration ran")
	require.NoError(t, kv.Close())

	mr := miniredis.RunT(t)
	kv, err = Open(ctx, config.StoreConfig{Driver: "redis", RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, kv)
	require.NoError(t, kv.Close())

	_, err = Open(ctx, config.StoreConfig{Driver: "mongo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported driver "mongo"`)
}
