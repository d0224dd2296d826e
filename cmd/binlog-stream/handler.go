package main

import (
	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/siddontang/go-log/log"

	"github.com/tsywkGo/go-mysql-binlog/streamer"
	"github.com/tsywkGo/go-mysql-binlog/streamer/event"
)

// logHandler writes one log line per event and reports the first fatal
// error on fatal.
type logHandler struct {
	streamer.DummyHandler
	fatal chan<- error
}

func newLogHandler(fatal chan<- error) *logHandler {
	return &logHandler{fatal: fatal}
}

func (h *logHandler) OnReady(pos gomysql.Position) {
	log.Infof("streaming from %s", pos)
}

func (h *logHandler) OnBinlog(ev event.Event, pos gomysql.Position) {
	switch e := ev.(type) {
	case *event.TableMapEvent:
		log.Infof("%s %s.%s columns %v, next %s", e.Kind(), e.Schema, e.TableName, e.Table.ColumnNames(), pos)
	case *event.WriteRowsEvent:
		log.Infof("%s %s, %d row images, next %s", e.Kind(), e.Table, len(e.Values), pos)
	case *event.UpdateRowsEvent:
		log.Infof("%s %s, %d row images, next %s", e.Kind(), e.Table, len(e.Values), pos)
	case *event.DeleteRowsEvent:
		log.Infof("%s %s, %d row images, next %s", e.Kind(), e.Table, len(e.Values), pos)
	case *event.OtherEvent:
		if e.Query != nil && len(e.Query.DDL) > 0 {
			log.Infof("%s %q ddl %+v, next %s", e.Kind(), e.Query.SQL, e.Query.DDL, pos)
			return
		}
		log.Debugf("%s, next %s", e.Kind(), pos)
	default:
		log.Debugf("%s, next %s", ev.Kind(), pos)
	}
}

func (h *logHandler) OnError(err error) {
	if !streamer.IsFatal(err) {
		log.Warnf("streamer error:%s", err)
		return
	}
	select {
	case h.fatal <- err:
	default:
	}
}

func (h *logHandler) OnWarning(w *streamer.Warning) {
	log.Warnf("binlog position drift: %s", w)
}

func (h *logHandler) OnStopped() {
	log.Infof("streamer stopped")
}

func (h *logHandler) String() string {
	return "logHandler"
}
