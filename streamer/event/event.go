// Package event holds the closed set of decoded binlog events.
package event

import (
	"fmt"

	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/tsywkGo/go-mysql-binlog/streamer/meta"
)

// Header is the common envelope of every binlog event.
type Header struct {
	Timestamp uint32
	EventType replication.EventType
	ServerID  uint32
	EventSize uint32
	// NextLogPos is the offset right after this event in the current log file.
	NextLogPos uint32
	Flags      uint16
}

// Event is implemented only by the types of this package.
type Event interface {
	EventHeader() *Header
	Kind() string
	event()
}

func (h *Header) EventHeader() *Header {
	return h
}

func (h *Header) Kind() string {
	return KindOf(h.EventType)
}

func (h *Header) String() string {
	return fmt.Sprintf("%s ts=%d server=%d size=%d next=%d", h.Kind(), h.Timestamp, h.ServerID, h.EventSize, h.NextLogPos)
}

// TableMapEvent declares the table that following rows events refer to.
// Table is set once the table id has been resolved.
type TableMapEvent struct {
	Header
	TableID     uint64
	Flags       uint16
	Schema      string
	TableName   string
	ColumnCount uint64
	ColumnTypes []byte
	ColumnMeta  []byte
	NullBitmap  []byte

	Table *meta.Table
}

func (*TableMapEvent) event() {}

// Columns returns the merged column metadata, nil until resolved.
func (e *TableMapEvent) Columns() []meta.Column {
	if e.Table == nil {
		return nil
	}
	return e.Table.Columns
}

// RotateEvent announces the log file streaming continues in.
type RotateEvent struct {
	Header
	// Position is where streaming continues in NextLogName.
	Position    uint64
	NextLogName string
}

func (*RotateEvent) event() {}

// RowsEvent is the shared body of write, update and delete rows events.
// Rows holds the raw row images, Values the same images decoded against
// the table map of TableID.
type RowsEvent struct {
	Header
	TableID     uint64
	Flags       uint16
	ExtraData   []byte
	ColumnCount uint64
	// ColumnsPresent is the before image bitmap for update events.
	ColumnsPresent      []byte
	ColumnsPresentAfter []byte
	Rows                []byte

	// Values has one entry per row image, ColumnCount wide; columns absent
	// from the image are nil. Update events alternate before and after
	// images.
	Values [][]interface{}

	Table *meta.Table
}

type WriteRowsEvent struct {
	RowsEvent
}

func (*WriteRowsEvent) event() {}

type UpdateRowsEvent struct {
	RowsEvent
}

func (*UpdateRowsEvent) event() {}

type DeleteRowsEvent struct {
	RowsEvent
}

func (*DeleteRowsEvent) event() {}

// Query is the decoded body of a QUERY_EVENT.
type Query struct {
	Schema string
	SQL    string
	// DDL lists the tables a schema changing statement touches.
	DDL []DDL
}

type DDL struct {
	Action string
	Schema string
	Table  string
}

// OtherEvent covers every event that is not a table map, rotate or rows event.
// Body is the payload after the header, without checksum.
type OtherEvent struct {
	Header
	Body []byte

	Query *Query
	// GTID is uuid:gno for GTID_EVENT.
	GTID string
	XID  uint64
}

func (*OtherEvent) event() {}
