package sink

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dselans/zpeek/checkpoint/types"
	"github.com/dselans/zpeek/inflate"
)

func newMockSink(t *testing.T, driver string) (*SQLSink, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	ddl, err := createTableQuery(driver, "zlib_headers")
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(ddl)).WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := newSQLSink(context.Background(), sqlx.NewDb(db, driver), "zlib_headers")
	require.NoError(t, err)

	return s, mock
}

func TestSQLSinkWrite(t *testing.T) {
	s, mock := newMockSink(t, "postgres")

	e := types.NewEntry("/data/a.zz", 10, inflate.Header{CMF: 0x78, FLG: 0x9c, Final: true, Type: inflate.BlockFixed}, nil)
	e.Hash = "00000000deadbeef"

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO zlib_headers (path, size, hash, kind, error, error_offset, cmf, flg, level, final, block_type, duplicate_of, scanned_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)")).
		WithArgs(
			"/data/a.zz", int64(10), "00000000deadbeef", "ok", "", int64(0),
			int64(0x78), int64(0x9c), "default", true, "fixed", "", sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.Write(context.Background(), e))

	mock.ExpectClose()
	require.NoError(t, s.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSinkWriteFailure(t *testing.T) {
	s, mock := newMockSink(t, "mysql")

	fe := &inflate.FieldError{Field: "flg", Value: 0x9d, Offset: 2, Err: inflate.ErrHeaderChecksum}
	e := types.NewEntry("/data/b.zz", 3, inflate.Header{}, fe)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO zlib_headers (path, size, hash, kind, error, error_offset,")).
		WithArgs(
			"/data/b.zz", int64(3), "", "header_checksum", e.Error, int64(2),
			int64(0), int64(0), "", false, "", "", sqlmock.AnyArg(),
		).
		WillReturnError(errors.New("connection reset"))

	err := s.Write(context.Background(), e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Contains(t, err.Error(), "/data/b.zz")

	// invalid entries never reach the database
	require.Error(t, s.Write(context.Background(), &types.Entry{Path: "/data/c.zz"}))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSQLSinkCreateTableFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS zlib_headers")).
		WillReturnError(errors.New("permission denied"))

	_, err = newSQLSink(context.Background(), sqlx.NewDb(db, "postgres"), "zlib_headers")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")

	_, err = newSQLSink(context.Background(), sqlx.NewDb(db, "sqlite3"), "zlib_headers")
	require.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}
