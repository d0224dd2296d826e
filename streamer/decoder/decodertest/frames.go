// Package decodertest builds binlog dump packets for tests.
package decodertest

import (
	"encoding/binary"
	"hash/crc32"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
)

// Builder encodes events the way a server streams them: an OK marker,
// the 19 byte header, the body and the CRC32 trailer when Checksum is set.
type Builder struct {
	Checksum bool
	ServerID uint32
	// Timestamp is written into every header.
	Timestamp uint32
}

// Event frames body as an event of type typ whose next position is next.
func (b *Builder) Event(typ replication.EventType, next uint32, body []byte) []byte {
	size := replication.EventHeaderSize + len(body)
	if b.Checksum {
		size += replication.BinlogChecksumLength
	}
	buf := make([]byte, 0, 1+size)
	buf = append(buf, gomysql.OK_HEADER)
	buf = appendUint32(buf, b.Timestamp)
	buf = append(buf, byte(typ))
	buf = appendUint32(buf, b.ServerID)
	buf = appendUint32(buf, uint32(size))
	buf = appendUint32(buf, next)
	buf = appendUint16(buf, 0)
	buf = append(buf, body...)
	if b.Checksum {
		buf = appendUint32(buf, crc32.ChecksumIEEE(buf[1:]))
	}
	return buf
}

// FormatDescription returns a v4 format description whose table map and
// rows post header length is tableIDPostHeader (6 for 4 byte table ids,
// 8 or 10 otherwise).
func (b *Builder) FormatDescription(next uint32, tableIDPostHeader byte) []byte {
	body := appendUint16(nil, 4)
	version := make([]byte, 50)
	copy(version, "5.7.30-log")
	body = append(body, version...)
	body = appendUint32(body, 0)
	body = append(body, replication.EventHeaderSize)
	lens := make([]byte, 40)
	for _, t := range []replication.EventType{
		replication.TABLE_MAP_EVENT,
		replication.WRITE_ROWS_EVENTv1, replication.UPDATE_ROWS_EVENTv1, replication.DELETE_ROWS_EVENTv1,
	} {
		lens[int(t)-1] = tableIDPostHeader
	}
	for _, t := range []replication.EventType{
		replication.WRITE_ROWS_EVENTv2, replication.UPDATE_ROWS_EVENTv2, replication.DELETE_ROWS_EVENTv2,
	} {
		lens[int(t)-1] = tableIDPostHeader + 2
	}
	body = append(body, lens...)
	return b.Event(replication.FORMAT_DESCRIPTION_EVENT, next, body)
}

func (b *Builder) Rotate(next uint32, pos uint64, name string) []byte {
	body := appendUint64(nil, pos)
	body = append(body, name...)
	return b.Event(replication.ROTATE_EVENT, next, body)
}

// TableMap encodes a table map with a 6 byte table id and the given number
// of LONG columns.
func (b *Builder) TableMap(next uint32, tableID uint64, schema, table string, columns int) []byte {
	types := make([]byte, columns)
	for i := range types {
		types[i] = gomysql.MYSQL_TYPE_LONG
	}
	return b.TableMapColumns(next, tableID, schema, table, types, nil)
}

// TableMapColumns encodes a table map with the given column types and raw
// column metadata block.
func (b *Builder) TableMapColumns(next uint32, tableID uint64, schema, table string, types, meta []byte) []byte {
	body := appendUint48(nil, tableID)
	body = appendUint16(body, 1)
	body = append(body, byte(len(schema)))
	body = append(body, schema...)
	body = append(body, 0)
	body = append(body, byte(len(table)))
	body = append(body, table...)
	body = append(body, 0)
	body = gomysql.AppendLengthEncodedInteger(body, uint64(len(types)))
	body = append(body, types...)
	body = gomysql.AppendLengthEncodedInteger(body, uint64(len(meta)))
	body = append(body, meta...)
	body = append(body, make([]byte, (len(types)+7)/8)...)
	return b.Event(replication.TABLE_MAP_EVENT, next, body)
}

// Rows encodes a v2 rows event of typ with 6 byte table id and rows as the
// raw row images.
func (b *Builder) Rows(typ replication.EventType, next uint32, tableID uint64, columns int, rows []byte) []byte {
	body := appendUint48(nil, tableID)
	body = appendUint16(body, 0)
	body = appendUint16(body, 2)
	body = gomysql.AppendLengthEncodedInteger(body, uint64(columns))
	bitmap := make([]byte, (columns+7)/8)
	for i := range bitmap {
		bitmap[i] = 0xff
	}
	body = append(body, bitmap...)
	if typ == replication.UPDATE_ROWS_EVENTv2 {
		body = append(body, bitmap...)
	}
	body = append(body, rows...)
	return b.Event(typ, next, body)
}

func (b *Builder) Query(next uint32, schema, query string) []byte {
	body := appendUint32(nil, 1)
	body = appendUint32(body, 0)
	body = append(body, byte(len(schema)))
	body = appendUint16(body, 0)
	body = appendUint16(body, 0)
	body = append(body, schema...)
	body = append(body, 0)
	body = append(body, query...)
	return b.Event(replication.QUERY_EVENT, next, body)
}

func (b *Builder) Xid(next uint32, xid uint64) []byte {
	return b.Event(replication.XID_EVENT, next, appendUint64(nil, xid))
}

func (b *Builder) GTID(next uint32, sid [16]byte, gno uint64) []byte {
	body := []byte{1}
	body = append(body, sid[:]...)
	body = appendUint64(body, gno)
	return b.Event(replication.GTID_EVENT, next, body)
}

func (b *Builder) Heartbeat(next uint32, name string) []byte {
	return b.Event(replication.HEARTBEAT_EVENT, next, []byte(name))
}

// EOF is the packet a server sends when it ends the dump.
func EOF() []byte {
	return []byte{gomysql.EOF_HEADER, 0, 0, 0, 0}
}

// Err is an error packet with sql state.
func Err(code uint16, state, message string) []byte {
	buf := []byte{gomysql.ERR_HEADER}
	buf = appendUint16(buf, code)
	buf = append(buf, '#')
	buf = append(buf, state...)
	return append(buf, message...)
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendUint48(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:6]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}
