package streamer

import (
	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/tsywkGo/go-mysql-binlog/streamer/event"
)

// Handler receives the streamer signals. Calls run one at a time and in
// order on a goroutine of their own; the queue in front of it is unbounded.
// Calling Stop from a callback is safe.
type Handler interface {
	// OnReady fires once bootstrap settled, with the starting position.
	OnReady(pos gomysql.Position)
	// OnBinlog receives one event and the position to resume after it.
	OnBinlog(ev event.Event, pos gomysql.Position)
	// OnError receives *Error values; see IsFatal.
	OnError(err error)
	OnWarning(w *Warning)
	OnStopped()
	String() string
}

type DummyHandler struct{}

func (h *DummyHandler) OnReady(gomysql.Position)               {}
func (h *DummyHandler) OnBinlog(event.Event, gomysql.Position) {}
func (h *DummyHandler) OnError(error)                          {}
func (h *DummyHandler) OnWarning(*Warning)                     {}
func (h *DummyHandler) OnStopped()                             {}
func (h *DummyHandler) String() string                         { return "DummyHandler" }
