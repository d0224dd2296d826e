// Package decoder turns binlog stream packets into events.
package decoder

import (
	"fmt"
	"hash/crc32"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/pingcap/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/tsywkGo/go-mysql-binlog/streamer/event"
)

var (
	ErrMalformedFrame   = errors.New("malformed binlog frame")
	ErrChecksumMismatch = errors.New("binlog event checksum mismatch")
	// ErrStreamEnd is returned for an EOF packet, sent when the server stops
	// the dump, e.g. with BINLOG_DUMP_NON_BLOCK.
	ErrStreamEnd = errors.New("binlog stream ended")
)

// Decoder is not safe for concurrent use. It keeps the post header lengths
// of the last format description event, which decide the table id width.
//
// Byte slices of returned events alias the decoded packet.
type Decoder struct {
	checksum       bool
	postHeaderLens []byte
}

type Option func(d *Decoder)

// WithChecksum makes the decoder validate and strip the CRC32 trailer of
// every event.
func WithChecksum(enabled bool) Option {
	return func(d *Decoder) {
		d.checksum = enabled
	}
}

func New(opts ...Option) *Decoder {
	d := &Decoder{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Decoder) Checksum() bool {
	return d.checksum
}

// Decode decodes one packet payload of a binlog dump.
func (d *Decoder) Decode(data []byte) (event.Event, error) {
	if len(data) == 0 {
		return nil, errors.Annotate(ErrMalformedFrame, "empty packet")
	}
	switch data[0] {
	case gomysql.OK_HEADER:
		return d.decodeEvent(data[1:])
	case gomysql.ERR_HEADER:
		return nil, errors.Trace(parseErrPacket(data))
	case gomysql.EOF_HEADER:
		return nil, errors.Trace(ErrStreamEnd)
	default:
		return nil, errors.Annotatef(ErrMalformedFrame, "unexpected packet marker 0x%02x", data[0])
	}
}

func (d *Decoder) decodeEvent(data []byte) (event.Event, error) {
	if len(data) < replication.EventHeaderSize {
		return nil, errors.Annotatef(ErrMalformedFrame, "event of %d bytes is shorter than its header", len(data))
	}
	h := parseHeader(data)
	if int(h.EventSize) != len(data) {
		return nil, errors.Annotatef(ErrMalformedFrame, "%s declares %d bytes, got %d", h.Kind(), h.EventSize, len(data))
	}
	if d.checksum {
		if len(data) < replication.EventHeaderSize+replication.BinlogChecksumLength {
			return nil, errors.Annotatef(ErrMalformedFrame, "%s too short for checksum", h.Kind())
		}
		n := len(data) - replication.BinlogChecksumLength
		want := uint32(gomysql.FixedLengthInt(data[n:]))
		if got := crc32.ChecksumIEEE(data[:n]); got != want {
			return nil, errors.Annotatef(ErrChecksumMismatch, "%s at next pos %d: got 0x%08x, want 0x%08x", h.Kind(), h.NextLogPos, got, want)
		}
		data = data[:n]
	}

	body := data[replication.EventHeaderSize:]
	var (
		ev  event.Event
		err error
	)
	switch h.EventType {
	case replication.TABLE_MAP_EVENT:
		ev, err = d.decodeTableMap(h, body)
	case replication.ROTATE_EVENT:
		ev, err = d.decodeRotate(h, body)
	case replication.WRITE_ROWS_EVENTv0, replication.WRITE_ROWS_EVENTv1, replication.WRITE_ROWS_EVENTv2:
		var rows *event.RowsEvent
		if rows, err = d.decodeRows(h, body); err == nil {
			ev = &event.WriteRowsEvent{RowsEvent: *rows}
		}
	case replication.UPDATE_ROWS_EVENTv0, replication.UPDATE_ROWS_EVENTv1, replication.UPDATE_ROWS_EVENTv2:
		var rows *event.RowsEvent
		if rows, err = d.decodeRows(h, body); err == nil {
			ev = &event.UpdateRowsEvent{RowsEvent: *rows}
		}
	case replication.DELETE_ROWS_EVENTv0, replication.DELETE_ROWS_EVENTv1, replication.DELETE_ROWS_EVENTv2:
		var rows *event.RowsEvent
		if rows, err = d.decodeRows(h, body); err == nil {
			ev = &event.DeleteRowsEvent{RowsEvent: *rows}
		}
	default:
		ev, err = d.decodeOther(h, body)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "decode %s", h.Kind())
	}
	return ev, nil
}

func parseHeader(data []byte) event.Header {
	r := newReader(data[:replication.EventHeaderSize])
	return event.Header{
		Timestamp:  r.int4(),
		EventType:  replication.EventType(r.int1()),
		ServerID:   r.int4(),
		EventSize:  r.int4(),
		NextLogPos: r.int4(),
		Flags:      r.int2(),
	}
}

func parseErrPacket(data []byte) error {
	r := newReader(data[1:])
	code := r.int2()
	if r.err != nil {
		return errors.Annotate(ErrMalformedFrame, "short error packet")
	}
	rest := r.rest()
	// protocol 4.1 carries '#' and a five byte sql state
	if len(rest) >= 6 && rest[0] == '#' {
		return &gomysql.MyError{Code: code, State: string(rest[1:6]), Message: string(rest[6:])}
	}
	return gomysql.NewError(code, string(rest))
}

// tableID reads the 6 byte table id, or 4 bytes when the format description
// declared a post header of 6 bytes for typ.
func (d *Decoder) tableID(r *reader, typ replication.EventType) uint64 {
	if d.postHeaderLen(typ) == 6 {
		return uint64(r.int4())
	}
	return r.fixed(6)
}

func (d *Decoder) postHeaderLen(typ replication.EventType) byte {
	i := int(typ) - 1
	if i < 0 || i >= len(d.postHeaderLens) {
		return 0
	}
	return d.postHeaderLens[i]
}

func (d *Decoder) decodeFormat(body []byte) error {
	r := newReader(body)
	version := r.int2()
	r.skip(50) // server version
	r.skip(4)  // create timestamp
	headerLen := r.int1()
	lens := r.rest()
	if r.err != nil {
		return r.err
	}
	if version != 4 || int(headerLen) != replication.EventHeaderSize {
		return errors.Annotatef(ErrMalformedFrame, "unsupported binlog version %d with header length %d", version, headerLen)
	}
	// trailing checksum algorithm byte and checksum of 5.6+ sit past the known types
	d.postHeaderLens = append(d.postHeaderLens[:0], lens...)
	return nil
}

func (d *Decoder) decodeTableMap(h event.Header, body []byte) (*event.TableMapEvent, error) {
	r := newReader(body)
	e := &event.TableMapEvent{Header: h}
	e.TableID = d.tableID(r, h.EventType)
	e.Flags = r.int2()
	e.Schema = string(r.bytes(int(r.int1())))
	r.skip(1)
	e.TableName = string(r.bytes(int(r.int1())))
	r.skip(1)
	e.ColumnCount = r.intN()
	e.ColumnTypes = r.bytes(int(e.ColumnCount))
	e.ColumnMeta = r.bytes(int(r.intN()))
	e.NullBitmap = r.bytes(bitmapSize(e.ColumnCount))
	if r.err != nil {
		return nil, r.err
	}
	return e, nil
}

func (d *Decoder) decodeRotate(h event.Header, body []byte) (*event.RotateEvent, error) {
	r := newReader(body)
	e := &event.RotateEvent{Header: h}
	e.Position = r.int8()
	e.NextLogName = string(r.rest())
	if r.err != nil {
		return nil, r.err
	}
	if e.NextLogName == "" {
		return nil, errors.Annotate(ErrMalformedFrame, "rotate without log name")
	}
	return e, nil
}

func (d *Decoder) decodeRows(h event.Header, body []byte) (*event.RowsEvent, error) {
	r := newReader(body)
	e := &event.RowsEvent{Header: h}
	e.TableID = d.tableID(r, h.EventType)
	e.Flags = r.int2()
	if isRowsV2(h.EventType) {
		// the length includes its own two bytes
		extraLen := int(r.int2())
		if r.err == nil && extraLen < 2 {
			return nil, errors.Annotatef(ErrMalformedFrame, "extra data length %d", extraLen)
		}
		e.ExtraData = r.bytes(extraLen - 2)
	}
	e.ColumnCount = r.intN()
	e.ColumnsPresent = r.bytes(bitmapSize(e.ColumnCount))
	if isUpdateRows(h.EventType) {
		e.ColumnsPresentAfter = r.bytes(bitmapSize(e.ColumnCount))
	}
	e.Rows = r.rest()
	if r.err != nil {
		return nil, r.err
	}
	return e, nil
}

func (d *Decoder) decodeOther(h event.Header, body []byte) (*event.OtherEvent, error) {
	e := &event.OtherEvent{Header: h, Body: body}
	var err error
	switch h.EventType {
	case replication.FORMAT_DESCRIPTION_EVENT:
		err = d.decodeFormat(body)
	case replication.QUERY_EVENT:
		e.Query, err = decodeQuery(body)
	case replication.GTID_EVENT, replication.ANONYMOUS_GTID_EVENT:
		e.GTID, err = decodeGTID(body)
	case replication.XID_EVENT:
		r := newReader(body)
		e.XID = r.int8()
		err = r.err
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func decodeQuery(body []byte) (*event.Query, error) {
	r := newReader(body)
	r.skip(4) // slave proxy id
	r.skip(4) // execution time
	schemaLen := int(r.int1())
	r.skip(2) // error code
	r.skip(int(r.int2()))
	q := &event.Query{}
	q.Schema = string(r.bytes(schemaLen))
	r.skip(1)
	q.SQL = string(r.rest())
	if r.err != nil {
		return nil, r.err
	}
	return q, nil
}

func decodeGTID(body []byte) (string, error) {
	r := newReader(body)
	r.skip(1) // commit flag
	sid := r.bytes(16)
	gno := r.int8()
	if r.err != nil {
		return "", r.err
	}
	u, err := uuid.FromBytes(sid)
	if err != nil {
		return "", errors.Trace(err)
	}
	return fmt.Sprintf("%s:%d", u.String(), gno), nil
}

func isRowsV2(t replication.EventType) bool {
	switch t {
	case replication.WRITE_ROWS_EVENTv2, replication.UPDATE_ROWS_EVENTv2, replication.DELETE_ROWS_EVENTv2:
		return true
	}
	return false
}

func isUpdateRows(t replication.EventType) bool {
	switch t {
	case replication.UPDATE_ROWS_EVENTv0, replication.UPDATE_ROWS_EVENTv1, replication.UPDATE_ROWS_EVENTv2:
		return true
	}
	return false
}
