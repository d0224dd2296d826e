package syncer

import (
	"github.com/go-mysql-org/go-mysql/mysql"
)

// ISyncer tracks the replication cursor.
//
// Position is the resume cursor handed to consumers. Cached is the last
// position seen in an event, compared against the server tail to detect drift.
type ISyncer interface {
	Position() mysql.Position
	Cached() mysql.Position
	GTIDSet() mysql.GTIDSet
	Timestamp() uint32
	Latency() uint32

	// Reset sets both cursors, at bootstrap.
	Reset(pos mysql.Position)
	// Advance moves both offsets to nextPos within the current file.
	// A nextPos of 0 is ignored.
	Advance(nextPos uint32)
	// Rotate applies a rotate event and reports whether it switched files.
	Rotate(name string, pos uint64, nextPos uint32) bool
	UpdateGTID(gtid string) error
	UpdateTimestamp(ts uint32)
	UpdateLatency(ts uint32)
}
