package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS registry_kv`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT value FROM registry_kv WHERE key = \$1`).
		WithArgs("audit_history").
		WillReturnRows(mock.NewRows([]string{"value"}).AddRow([]byte(`{"@AkshatZayn":{"count":5}}`)))

	v, err := s.Get(context.Background(), "audit_history")
	require.NoError(t, err)
	assert.JSONEq(t, `{"@AkshatZayn":{"count":5}}`, string(v))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT value FROM registry_kv`).
		WithArgs("recent_searches").
		WillReturnError(pgx.ErrNoRows)

	v, err := s.Get(context.Background(), "recent_searches")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT value FROM registry_kv`).
		WithArgs("k").
		WillReturnError(errors.New("conn reset"))

	_, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: get k")
}

func TestPostgresStore_Set_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(key\) DO UPDATE`).
		WithArgs("last_seed_refresh", []byte(`"2024-03-01"`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Set(context.Background(), "last_seed_refresh", []byte(`"2024-03-01"`)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Remove(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM registry_kv WHERE key = \$1`).
		WithArgs("k").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, s.Remove(context.Background(), "k"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetMany_Commits(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO registry_kv`).
		WithArgs("a", []byte(`1`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO registry_kv`).
		WithArgs("b", []byte(`2`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.SetMany(context.Background(), map[string][]byte{"b": []byte(`2`), "a": []byte(`1`)})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetMany_RollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO registry_kv`).
		WithArgs("a", []byte(`1`), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.SetMany(context.Background(), map[string][]byte{"a": []byte(`1`), "b": []byte(`2`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: set a")
	assert.NoError(t, mock.ExpectationsWereMet())
}
