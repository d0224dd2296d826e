package event

import (
	"strings"

	"github.com/go-mysql-org/go-mysql/replication"
)

// Event kind names used by include/exclude event filters.
const (
	KindUnknown       = "unknown"
	KindQuery         = "query"
	KindStop          = "stop"
	KindRotate        = "rotate"
	KindIntVar        = "intvar"
	KindRand          = "rand"
	KindUserVar       = "uservar"
	KindFormat        = "format"
	KindXid           = "xid"
	KindTableMap      = "tablemap"
	KindWriteRows     = "writerows"
	KindUpdateRows    = "updaterows"
	KindDeleteRows    = "deleterows"
	KindIncident      = "incident"
	KindHeartbeat     = "heartbeat"
	KindRowsQuery     = "rowsquery"
	KindGTID          = "gtidlog"
	KindAnonymousGTID = "anonymousgtidlog"
	KindPreviousGTIDs = "previousgtids"
	KindLoad          = "load"
	KindIgnorable     = "ignorable"
)

var kindNames = map[replication.EventType]string{
	replication.UNKNOWN_EVENT:            KindUnknown,
	replication.QUERY_EVENT:              KindQuery,
	replication.STOP_EVENT:               KindStop,
	replication.ROTATE_EVENT:             KindRotate,
	replication.INTVAR_EVENT:             KindIntVar,
	replication.LOAD_EVENT:               KindLoad,
	replication.NEW_LOAD_EVENT:           KindLoad,
	replication.BEGIN_LOAD_QUERY_EVENT:   KindLoad,
	replication.EXECUTE_LOAD_QUERY_EVENT: KindLoad,
	replication.RAND_EVENT:               KindRand,
	replication.USER_VAR_EVENT:           KindUserVar,
	replication.FORMAT_DESCRIPTION_EVENT: KindFormat,
	replication.XID_EVENT:                KindXid,
	replication.TABLE_MAP_EVENT:          KindTableMap,
	replication.WRITE_ROWS_EVENTv0:       KindWriteRows,
	replication.WRITE_ROWS_EVENTv1:       KindWriteRows,
	replication.WRITE_ROWS_EVENTv2:       KindWriteRows,
	replication.UPDATE_ROWS_EVENTv0:      KindUpdateRows,
	replication.UPDATE_ROWS_EVENTv1:      KindUpdateRows,
	replication.UPDATE_ROWS_EVENTv2:      KindUpdateRows,
	replication.DELETE_ROWS_EVENTv0:      KindDeleteRows,
	replication.DELETE_ROWS_EVENTv1:      KindDeleteRows,
	replication.DELETE_ROWS_EVENTv2:      KindDeleteRows,
	replication.INCIDENT_EVENT:           KindIncident,
	replication.HEARTBEAT_EVENT:          KindHeartbeat,
	replication.IGNORABLE_EVENT:          KindIgnorable,
	replication.ROWS_QUERY_EVENT:         KindRowsQuery,
	replication.GTID_EVENT:               KindGTID,
	replication.ANONYMOUS_GTID_EVENT:     KindAnonymousGTID,
	replication.PREVIOUS_GTIDS_EVENT:     KindPreviousGTIDs,
}

// KindOf maps an event type tag to its filter name. Unlisted types are "unknown".
func KindOf(t replication.EventType) string {
	if name, ok := kindNames[t]; ok {
		return name
	}
	return KindUnknown
}

// NormalizeKind lower-cases a configured kind name, so "TableMap" and
// "tablemap" select the same events.
func NormalizeKind(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
