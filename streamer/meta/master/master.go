package master

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	sqldriver "github.com/go-sql-driver/mysql"
	"github.com/pingcap/errors"
	"github.com/siddontang/go-log/log"
	"github.com/siddontang/go/hack"
	"github.com/tsywkGo/go-mysql-binlog/streamer/meta"
)

// Master is the control channel: plain request/response administrative
// queries against the source server.
type Master struct {
	db *sql.DB
	// owned is true when the pool was opened here and must be closed on teardown.
	owned bool
}

// New opens and owns a connection pool built from cfg.
func New(cfg *Config) (*Master, error) {
	if err := cfg.WithDefault().Validate(); err != nil {
		log.Errorf("master config:%s, validate error:%s", cfg.String(), err)
		return nil, errors.Trace(err)
	}
	db, err := sql.Open("mysql", cfg.encodeDSN())
	if err != nil {
		log.Errorf("master config:%s, open mysql error:%s", cfg.String(), err)
		return nil, errors.Trace(err)
	}
	// 最大连接周期，超过时间的连接就close
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	// 设置最大连接数
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	// 设置闲置连接数
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	return &Master{db: db, owned: true}, nil
}

// NewWithDB reuses a caller supplied pool. It is not closed by Close.
func NewWithDB(db *sql.DB) *Master {
	return &Master{db: db}
}

func (m *Master) Owned() bool {
	return m.owned
}

func (m *Master) Close() error {
	if !m.owned {
		return nil
	}
	return errors.Trace(m.db.Close())
}

// BinlogChecksum returns @@GLOBAL.binlog_checksum, e.g. "NONE" or "CRC32".
func (m *Master) BinlogChecksum(ctx context.Context) (string, error) {
	var checksum sql.NullString
	if err := m.db.QueryRowContext(ctx, _checksumStatement).Scan(&checksum); err != nil {
		return "", errors.Trace(err)
	}
	return checksum.String, nil
}

// BinaryLogs lists the binary log files in the order they were created,
// with their sizes as positions.
func (m *Master) BinaryLogs(ctx context.Context) ([]gomysql.Position, error) {
	rows, err := m.db.QueryContext(ctx, _binaryLogsStatement)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(cols) < 2 {
		return nil, errors.Errorf("unexpected binary logs columns %v", cols)
	}
	values, dest := m.makeScanDest(len(cols))

	var logs []gomysql.Position
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Trace(err)
		}
		name, _ := m.convertString(values[0])
		size, err := m.convertUint(values[1])
		if err != nil {
			return nil, errors.Annotatef(err, "binary log %s size", name)
		}
		logs = append(logs, gomysql.Position{Name: name, Pos: uint32(size)})
	}
	return logs, errors.Trace(rows.Err())
}

// LastBinaryLog returns the newest binary log and its size. ok is false when
// the server reports no binary logs.
func (m *Master) LastBinaryLog(ctx context.Context) (pos gomysql.Position, ok bool, err error) {
	logs, err := m.BinaryLogs(ctx)
	if err != nil {
		return pos, false, err
	}
	if len(logs) == 0 {
		return pos, false, nil
	}
	return logs[len(logs)-1], true, nil
}

// TableColumns returns the column metadata of dbName.tbName ordered by
// ordinal position. A table that does not exist yields no columns and no error.
func (m *Master) TableColumns(ctx context.Context, dbName, tbName string) ([]meta.Column, error) {
	rows, err := m.db.QueryContext(ctx, _tableColumnsStatement, dbName, tbName)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()

	values, dest := m.makeScanDest(5)
	var columns []meta.Column
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Trace(err)
		}
		var c meta.Column
		c.Name, _ = m.convertString(values[0])
		c.Collation, _ = m.convertString(values[1])
		c.CharacterSet, _ = m.convertString(values[2])
		c.Comment, _ = m.convertString(values[3])
		c.ColumnType, _ = m.convertString(values[4])
		columns = append(columns, c)
	}
	return columns, errors.Trace(rows.Err())
}

// Kill terminates the server thread with the given connection id.
func (m *Master) Kill(ctx context.Context, connectionID uint32) error {
	_, err := m.db.ExecContext(ctx, fmt.Sprintf("KILL %d", connectionID))
	return errors.Trace(err)
}

// CheckBinlogRowFormat checks that binlog_format is ROW.
func (m *Master) CheckBinlogRowFormat(ctx context.Context) error {
	rows, err := m.db.QueryContext(ctx, _binlogFormatStatement)
	if err != nil {
		return errors.Trace(err)
	}
	defer rows.Close()
	var name, rowFormat string
	for rows.Next() {
		if err := rows.Scan(&name, &rowFormat); err != nil {
			return errors.Trace(err)
		}
	}
	if !strings.EqualFold(rowFormat, "ROW") {
		return errors.Errorf("MySQL binlog_format must ROW, but %s now", rowFormat)
	}
	return nil
}

// IsUnknownSystemVariable reports whether err is ER_UNKNOWN_SYSTEM_VARIABLE,
// as returned by servers that predate binlog checksums.
func IsUnknownSystemVariable(err error) bool {
	switch e := errors.Cause(err).(type) {
	case *sqldriver.MySQLError:
		return e.Number == gomysql.ER_UNKNOWN_SYSTEM_VARIABLE
	case *gomysql.MyError:
		return e.Code == gomysql.ER_UNKNOWN_SYSTEM_VARIABLE
	}
	return false
}

func (m *Master) makeScanDest(size int) ([][]byte, []interface{}) {
	values := make([][]byte, size)
	dest := make([]interface{}, size)
	for i := range values {
		dest[i] = &values[i]
	}
	return values, dest
}

func (m *Master) convertString(d interface{}) (string, error) {
	switch v := d.(type) {
	case string:
		return v, nil
	case []byte:
		return hack.String(v), nil
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 64), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case nil:
		return "", nil
	default:
		return "", errors.Errorf("data type is %T", v)
	}
}

func (m *Master) convertUint(d interface{}) (uint64, error) {
	switch v := d.(type) {
	case int:
		return uint64(v), nil
	case int64:
		return uint64(v), nil
	case uint32:
		return uint64(v), nil
	case uint64:
		return v, nil
	case string:
		return strconv.ParseUint(v, 10, 64)
	case []byte:
		return strconv.ParseUint(string(v), 10, 64)
	case nil:
		return 0, nil
	default:
		return 0, errors.Errorf("data type is %T", v)
	}
}
