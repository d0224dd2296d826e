package master

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	sqldriver "github.com/go-sql-driver/mysql"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockMaster(t *testing.T) (*Master, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestMaster_BinlogChecksum(t *testing.T) {
	m, mock := newMockMaster(t)
	mock.ExpectQuery(regexp.QuoteMeta(_checksumStatement)).
		WillReturnRows(sqlmock.NewRows([]string{"checksum"}).AddRow("CRC32"))

	checksum, err := m.BinlogChecksum(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "CRC32", checksum)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaster_BinlogChecksumUnknownVariable(t *testing.T) {
	m, mock := newMockMaster(t)
	mock.ExpectQuery(regexp.QuoteMeta(_checksumStatement)).
		WillReturnError(&sqldriver.MySQLError{Number: 1193, Message: "Unknown system variable 'binlog_checksum'"})

	_, err := m.BinlogChecksum(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnknownSystemVariable(err))
}

func TestIsUnknownSystemVariable(t *testing.T) {
	assert.True(t, IsUnknownSystemVariable(errors.Trace(gomysql.NewError(gomysql.ER_UNKNOWN_SYSTEM_VARIABLE, "x"))))
	assert.False(t, IsUnknownSystemVariable(&sqldriver.MySQLError{Number: 1045}))
	assert.False(t, IsUnknownSystemVariable(errors.New("boom")))
	assert.False(t, IsUnknownSystemVariable(nil))
}

func TestMaster_BinaryLogs(t *testing.T) {
	m, mock := newMockMaster(t)
	mock.ExpectQuery(regexp.QuoteMeta(_binaryLogsStatement)).
		WillReturnRows(sqlmock.NewRows([]string{"Log_name", "File_size", "Encrypted"}).
			AddRow("log.000001", int64(177), "No").
			AddRow("log.000003", int64(4096), "No"))

	logs, err := m.BinaryLogs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []gomysql.Position{
		{Name: "log.000001", Pos: 177},
		{Name: "log.000003", Pos: 4096},
	}, logs)
}

func TestMaster_LastBinaryLog(t *testing.T) {
	m, mock := newMockMaster(t)
	mock.ExpectQuery(regexp.QuoteMeta(_binaryLogsStatement)).
		WillReturnRows(sqlmock.NewRows([]string{"Log_name", "File_size"}).
			AddRow("log.000003", int64(4096)))
	mock.ExpectQuery(regexp.QuoteMeta(_binaryLogsStatement)).
		WillReturnRows(sqlmock.NewRows([]string{"Log_name", "File_size"}))

	pos, ok, err := m.LastBinaryLog(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, gomysql.Position{Name: "log.000003", Pos: 4096}, pos)

	_, ok, err = m.LastBinaryLog(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMaster_TableColumns(t *testing.T) {
	m, mock := newMockMaster(t)
	mock.ExpectQuery(regexp.QuoteMeta(_tableColumnsStatement)).
		WithArgs("db1", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "COLLATION_NAME", "CHARACTER_SET_NAME", "COLUMN_COMMENT", "COLUMN_TYPE"}).
			AddRow("id", nil, nil, "pk", "int(11)").
			AddRow("name", "utf8mb4_general_ci", "utf8mb4", "", "varchar(32)"))

	cols, err := m.TableColumns(context.Background(), "db1", "t1")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "id", cols[0].Name)
	assert.Equal(t, "", cols[0].Collation)
	assert.Equal(t, "pk", cols[0].Comment)
	assert.Equal(t, "utf8mb4", cols[1].CharacterSet)
	assert.Equal(t, "varchar(32)", cols[1].ColumnType)
}

func TestMaster_TableColumnsMissingTable(t *testing.T) {
	m, mock := newMockMaster(t)
	mock.ExpectQuery(regexp.QuoteMeta(_tableColumnsStatement)).
		WithArgs("db1", "gone").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "COLLATION_NAME", "CHARACTER_SET_NAME", "COLUMN_COMMENT", "COLUMN_TYPE"}))

	cols, err := m.TableColumns(context.Background(), "db1", "gone")
	require.NoError(t, err)
	assert.Empty(t, cols)
}

func TestMaster_KillAndClose(t *testing.T) {
	m, mock := newMockMaster(t)
	mock.ExpectExec("KILL 42").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, m.Kill(context.Background(), 42))
	assert.False(t, m.Owned())
	// not owned: the pool must stay open
	require.NoError(t, m.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaster_CheckBinlogRowFormat(t *testing.T) {
	m, mock := newMockMaster(t)
	mock.ExpectQuery(regexp.QuoteMeta(_binlogFormatStatement)).
		WillReturnRows(sqlmock.NewRows([]string{"Variable_name", "Value"}).AddRow("binlog_format", "ROW"))
	mock.ExpectQuery(regexp.QuoteMeta(_binlogFormatStatement)).
		WillReturnRows(sqlmock.NewRows([]string{"Variable_name", "Value"}).AddRow("binlog_format", "STATEMENT"))

	assert.NoError(t, m.CheckBinlogRowFormat(context.Background()))
	assert.Error(t, m.CheckBinlogRowFormat(context.Background()))
}

func TestConfig_WithDefault(t *testing.T) {
	cfg := (&Config{Host: "127.0.0.1", User: "root", Password: "secret"}).WithDefault()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint16(3306), cfg.Port)
	assert.Equal(t, "127.0.0.1:3306", cfg.Addr())
	assert.Equal(t, "root:secret@tcp(127.0.0.1:3306)/information_schema", cfg.encodeDSN())
	assert.NotContains(t, cfg.String(), "secret")

	cfg.Charset = "utf8mb4"
	assert.Equal(t, "root:secret@tcp(127.0.0.1:3306)/information_schema?charset=utf8mb4", cfg.encodeDSN())

	assert.Error(t, (&Config{}).WithDefault().Validate())
	assert.Error(t, (&Config{Host: "h", MaxOpenConns: 1, MaxIdleConns: 2}).Validate())
}
