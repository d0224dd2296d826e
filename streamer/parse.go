package streamer

import (
	"context"
	"strings"

	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/pingcap/errors"
	"github.com/siddontang/go-log/log"
	"github.com/tsywkGo/go-mysql-binlog/streamer/decoder"
	"github.com/tsywkGo/go-mysql-binlog/streamer/event"
	"github.com/tsywkGo/go-mysql-binlog/streamer/matcher"
	"github.com/tsywkGo/go-mysql-binlog/streamer/matcher/common"
	"github.com/tsywkGo/go-mysql-binlog/streamer/meta"
)

// handleEvent updates the position, resolves tables and emits ev when the
// filter lets it through. A returned error is fatal.
func (s *Streamer) handleEvent(ev event.Event) *Error {
	h := ev.EventHeader()
	if h.Timestamp != 0 {
		s.syncer.UpdateTimestamp(h.Timestamp)
		s.syncer.UpdateLatency(h.Timestamp)
	}

	switch e := ev.(type) {
	case *event.RotateEvent:
		return s.handleRotateEvent(e)
	case *event.TableMapEvent:
		return s.handleTableMapEvent(e)
	case *event.WriteRowsEvent:
		return s.handleRowsEvent(ev, &e.RowsEvent)
	case *event.UpdateRowsEvent:
		return s.handleRowsEvent(ev, &e.RowsEvent)
	case *event.DeleteRowsEvent:
		return s.handleRowsEvent(ev, &e.RowsEvent)
	case *event.OtherEvent:
		return s.handleOtherEvent(e)
	default:
		return &Error{Kind: FatalDecode, Err: errors.Errorf("unexpected event %T", ev)}
	}
}

func (s *Streamer) handleRotateEvent(e *event.RotateEvent) *Error {
	if s.syncer.Rotate(e.NextLogName, e.Position, e.NextLogPos) {
		log.Infof("rotate to binlog %s, position %d", e.NextLogName, e.Position)
	}
	// never filtered: consumers track the file name through it
	s.emit(e)
	return nil
}

// handleTableMapEvent caches the table even when the event itself is filtered.
func (s *Streamer) handleTableMapEvent(e *event.TableMapEvent) *Error {
	s.syncer.Advance(e.NextLogPos)
	s.tableMaps[e.TableID] = e

	tbMeta, ok := s.meta.Get(e.TableID)
	if !ok {
		var err *Error
		if tbMeta, err = s.resolve(e); err != nil {
			return err
		}
		if tbMeta == nil {
			return nil
		}
	}
	e.Table = tbMeta
	if s.matchTable(e.Kind(), e.Schema, e.TableName) {
		s.emit(e)
	}
	return nil
}

func (s *Streamer) handleRowsEvent(ev event.Event, rows *event.RowsEvent) *Error {
	tbMeta, ok := s.meta.Get(rows.TableID)
	if !ok {
		tm, pending := s.pending[rows.TableID]
		if !pending {
			s.syncer.Advance(rows.NextLogPos)
			s.signalError(&Error{Kind: RecoverableMeta, Err: errors.Annotatef(ErrUnmappedTable, "table id %d", rows.TableID)})
			return nil
		}
		// retry the table map whose columns were missing
		var err *Error
		if tbMeta, err = s.resolve(tm); err != nil {
			return err
		}
		if tbMeta == nil {
			s.syncer.Advance(rows.NextLogPos)
			return nil
		}
		tm.Table = tbMeta
		if s.matchTable(tm.Kind(), tm.Schema, tm.TableName) {
			s.emit(tm)
		}
	}

	rows.Table = tbMeta
	if !s.matchTable(ev.Kind(), tbMeta.Schema, tbMeta.Name) {
		s.syncer.Advance(rows.NextLogPos)
		return nil
	}
	if tm, ok := s.tableMaps[rows.TableID]; ok {
		if err := decoder.DecodeRows(tm, rows); err != nil {
			return &Error{Kind: FatalDecode, Err: err}
		}
	}
	s.syncer.Advance(rows.NextLogPos)
	s.emit(ev)
	return nil
}

func (s *Streamer) handleOtherEvent(e *event.OtherEvent) *Error {
	switch e.EventType {
	case replication.GTID_EVENT:
		if err := s.syncer.UpdateGTID(e.GTID); err != nil {
			log.Warnf("update gtid %s error:%s", e.GTID, err)
		}
	case replication.QUERY_EVENT:
		s.parseQuery(e.Query)
	}

	s.syncer.Advance(e.NextLogPos)
	if s.matchEvent(e.Kind()) {
		s.emit(e)
	}
	return nil
}

// resolve looks the table of tm up on the control channel. It returns no
// table and no error when the table has no columns; that error is signalled
// and tm is kept for a retry on its next rows event.
func (s *Streamer) resolve(tm *event.TableMapEvent) (*meta.Table, *Error) {
	// Stop does not abort a running lookup
	tbMeta, err := s.flow.Resolve(context.Background(), tm.TableID, tm.Schema, tm.TableName)
	if err != nil {
		e, ok := err.(*Error)
		if !ok {
			e = &Error{Kind: FatalTransport, Err: err}
		}
		if e.Fatal() {
			return nil, e
		}
		s.pending[tm.TableID] = tm
		s.signalError(e)
		return nil, nil
	}
	delete(s.pending, tm.TableID)
	return tbMeta, nil
}

// parseQuery records the tables a DDL statement changes. Cached table meta is
// kept as is.
func (s *Streamer) parseQuery(q *event.Query) {
	if q == nil || isTransactionControl(q.SQL) {
		return
	}
	stmts, _, err := s.parser.Parse(q.SQL, "", "")
	if err != nil {
		log.Debugf("parseQuery skip query %s, error:%s", q.SQL, err)
		return
	}
	for _, stmt := range stmts {
		for _, n := range parseStmt(stmt) {
			if n.Schema == "" {
				n.Schema = q.Schema
			}
			q.DDL = append(q.DDL, n)
			log.Infof("table structure changed by %s on %s.%s, cached table meta is not refreshed", n.Action, n.Schema, n.Table)
		}
	}
}

func isTransactionControl(sql string) bool {
	switch strings.ToUpper(strings.TrimSpace(sql)) {
	case "BEGIN", "COMMIT", "ROLLBACK":
		return true
	}
	return false
}

func (s *Streamer) matchEvent(kind string) bool {
	return s.getMatcher().MatchEvent(kind) == common.StateTypes.Matched
}

func (s *Streamer) matchTable(kind, dbName, tbName string) bool {
	m := s.getMatcher()
	return m.MatchEvent(kind) == common.StateTypes.Matched &&
		m.MatchTable(dbName, tbName) == common.StateTypes.Matched
}

func (s *Streamer) getMatcher() matcher.IMatcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.matcher
}

func (s *Streamer) emit(ev event.Event) {
	pos := s.syncer.Position()
	log.Debugf("emit %s at %s", ev.EventHeader(), pos)
	s.signal(func(h Handler) { h.OnBinlog(ev, pos) })
}

func (s *Streamer) signalError(err *Error) {
	log.Warnf("streamer error:%s", err)
	s.signal(func(h Handler) { h.OnError(err) })
}
