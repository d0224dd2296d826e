package decoder

import (
	"math"
	"testing"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsywkGo/go-mysql-binlog/streamer/decoder/decodertest"
	"github.com/tsywkGo/go-mysql-binlog/streamer/event"
	"github.com/tsywkGo/go-mysql-binlog/streamer/meta"
)

func le(v uint64, n int) []byte {
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
	return b
}

func be(v uint64, n int) []byte {
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		b[n-1-i] = byte(v >> (8 * uint(i)))
	}
	return b
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func decodeTableRows(t *testing.T, typ replication.EventType, types, metaBlock, images []byte) (*event.TableMapEvent, *event.RowsEvent) {
	b := &decodertest.Builder{}
	d := New()

	ev, err := d.Decode(b.TableMapColumns(200, 31, "db1", "t1", types, metaBlock))
	require.NoError(t, err)
	tm := ev.(*event.TableMapEvent)

	ev, err = d.Decode(b.Rows(typ, 300, 31, len(types), images))
	require.NoError(t, err)
	switch e := ev.(type) {
	case *event.WriteRowsEvent:
		return tm, &e.RowsEvent
	case *event.UpdateRowsEvent:
		return tm, &e.RowsEvent
	case *event.DeleteRowsEvent:
		return tm, &e.RowsEvent
	}
	t.Fatalf("unexpected event %T", ev)
	return nil, nil
}

func TestDecodeRows_Types(t *testing.T) {
	types := []byte{
		gomysql.MYSQL_TYPE_TINY, gomysql.MYSQL_TYPE_SHORT, gomysql.MYSQL_TYPE_INT24,
		gomysql.MYSQL_TYPE_LONG, gomysql.MYSQL_TYPE_LONGLONG, gomysql.MYSQL_TYPE_VARCHAR,
		gomysql.MYSQL_TYPE_NEWDECIMAL, gomysql.MYSQL_TYPE_DOUBLE, gomysql.MYSQL_TYPE_DATETIME2,
		gomysql.MYSQL_TYPE_DATE, gomysql.MYSQL_TYPE_YEAR, gomysql.MYSQL_TYPE_BLOB,
	}
	metaBlock := []byte{
		0xff, 0x00, // varchar(255)
		10, 2, // decimal(10,2)
		8,    // double
		0,    // datetime(0)
		2,    // blob
	}
	ymd := int64((2021*13+8)<<5 | 15)
	hms := int64(10<<12 | 20<<6 | 30)
	datetime := uint64(ymd<<17|hms) + 0x8000000000

	image := cat(
		[]byte{0x00, 0x04}, // year is null
		[]byte{0xff},
		le(uint64(0xfffe), 2),
		le(uint64(0xfffffd), 3),
		le(100000, 4),
		le(1<<40, 8),
		[]byte{3, 'a', 'b', 'c'},
		[]byte{0x80, 0x00, 0x04, 0xd2, 56},
		le(math.Float64bits(1.5), 8),
		be(datetime, 5),
		le(2021<<9|8<<5|15, 3),
		cat(le(3, 2), []byte("xyz")),
	)
	tm, rows := decodeTableRows(t, replication.WRITE_ROWS_EVENTv2, types, metaBlock, image)

	require.NoError(t, DecodeRows(tm, rows))
	require.Len(t, rows.Values, 1)
	assert.Equal(t, []interface{}{
		int64(-1), int64(-2), int64(-3), int64(100000), int64(1 << 40), "abc",
		"1234.56", 1.5, "2021-08-15 10:20:30", "2021-08-15", nil, []byte("xyz"),
	}, rows.Values[0])
}

func TestDecodeRows_NegativeDecimal(t *testing.T) {
	positive := []byte{0x80, 0x00, 0x04, 0xd2, 56}
	negative := make([]byte, len(positive))
	for i, b := range positive {
		negative[i] = b ^ 0xff
	}
	types := []byte{gomysql.MYSQL_TYPE_NEWDECIMAL, gomysql.MYSQL_TYPE_NEWDECIMAL}
	tm, rows := decodeTableRows(t, replication.WRITE_ROWS_EVENTv2, types,
		[]byte{10, 2, 10, 0},
		cat([]byte{0}, negative, []byte{0x80, 0x00, 0x00, 0x00, 0x07}))

	require.NoError(t, DecodeRows(tm, rows))
	assert.Equal(t, []interface{}{"-1234.56", "7"}, rows.Values[0])
}

func TestDecodeRows_Temporal(t *testing.T) {
	types := []byte{
		gomysql.MYSQL_TYPE_TIME2, gomysql.MYSQL_TYPE_TIMESTAMP2, gomysql.MYSQL_TYPE_DATETIME2,
		gomysql.MYSQL_TYPE_STRING,
	}
	metaBlock := []byte{0, 3, 0, gomysql.MYSQL_TYPE_STRING, 10}
	image := cat(
		[]byte{0},
		be(uint64(12<<12|34<<6|56)+0x800000, 3),
		be(1600000000, 4), be(1230, 2),
		be(0x8000000000, 5),
		[]byte{2, 'h', 'i'},
	)
	tm, rows := decodeTableRows(t, replication.WRITE_ROWS_EVENTv2, types, metaBlock, image)

	require.NoError(t, DecodeRows(tm, rows))
	assert.Equal(t, []interface{}{
		"12:34:56", "2020-09-13 12:26:40.123", "0000-00-00 00:00:00", "hi",
	}, rows.Values[0])
}

func TestDecodeRows_ResolvedTable(t *testing.T) {
	types := []byte{gomysql.MYSQL_TYPE_LONG, gomysql.MYSQL_TYPE_STRING, gomysql.MYSQL_TYPE_STRING}
	metaBlock := []byte{gomysql.MYSQL_TYPE_ENUM, 1, gomysql.MYSQL_TYPE_SET, 1}
	before := cat([]byte{0}, le(0xffffffff, 4), []byte{2}, []byte{0x05})
	after := cat([]byte{0x02}, le(7, 4), []byte{0x02})
	tm, rows := decodeTableRows(t, replication.UPDATE_ROWS_EVENTv2, types, metaBlock, cat(before, after))
	rows.Table = meta.NewTable(31, "db1", "t1", []meta.Column{
		{Name: "id", ColumnType: "int(10) unsigned"},
		{Name: "state", ColumnType: "enum('a','b','c')"},
		{Name: "tags", ColumnType: "set('x','y','z')"},
	})

	require.NoError(t, DecodeRows(tm, rows))
	require.Len(t, rows.Values, 2)
	assert.Equal(t, []interface{}{uint64(0xffffffff), "b", "x,z"}, rows.Values[0])
	assert.Equal(t, []interface{}{uint64(7), nil, "y"}, rows.Values[1])
}

func TestDecodeRows_Errors(t *testing.T) {
	types := []byte{gomysql.MYSQL_TYPE_LONG, gomysql.MYSQL_TYPE_LONG}

	tm, rows := decodeTableRows(t, replication.WRITE_ROWS_EVENTv2, types, nil, []byte{0, 1, 0, 0, 0, 2, 0})
	err := DecodeRows(tm, rows)
	require.Error(t, err)
	assert.Equal(t, ErrMalformedFrame, errors.Cause(err))
	assert.Nil(t, rows.Values)

	tm, rows = decodeTableRows(t, replication.WRITE_ROWS_EVENTv2, []byte{gomysql.MYSQL_TYPE_DECIMAL}, nil, []byte{0, 1})
	assert.Error(t, DecodeRows(tm, rows))

	tm, rows = decodeTableRows(t, replication.WRITE_ROWS_EVENTv2, types, nil, nil)
	rows.TableID = 32
	assert.Error(t, DecodeRows(tm, rows))

	tm, rows = decodeTableRows(t, replication.DELETE_ROWS_EVENTv2, types, nil, nil)
	require.NoError(t, DecodeRows(tm, rows))
	assert.Empty(t, rows.Values)
}
