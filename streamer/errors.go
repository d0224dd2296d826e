package streamer

import (
	"fmt"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/errors"
	"github.com/tsywkGo/go-mysql-binlog/streamer/decoder"
)

var (
	// ErrMissingTableMeta means information_schema returned no columns for a
	// mapped table: it was dropped, renamed or is not visible to the user.
	ErrMissingTableMeta = errors.New("missing table meta")
	// ErrUnmappedTable means a rows event referenced a table id that no table
	// map event declared.
	ErrUnmappedTable = errors.New("rows event for unmapped table id")
	ErrInvalidState  = errors.New("invalid streamer state")
)

type ErrorKind int8

const (
	// FatalTransport is a control or streaming connection failure.
	FatalTransport ErrorKind = iota + 1
	// FatalDecode is a malformed frame or row image, or a checksum failure.
	FatalDecode
	// RecoverableMeta is a schema lookup that returned nothing; streaming goes on.
	RecoverableMeta
)

func (k ErrorKind) String() string {
	switch k {
	case FatalTransport:
		return "fatal-transport"
	case FatalDecode:
		return "fatal-decode"
	case RecoverableMeta:
		return "recoverable-meta"
	default:
		return "unknown"
	}
}

// Error is what Handler.OnError receives.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Cause() error {
	return errors.Cause(e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Fatal() bool {
	return e.Kind != RecoverableMeta
}

// IsFatal reports whether err stops the session. Errors not produced by the
// streamer are fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		return e.Fatal()
	}
	return true
}

// classifyStreamError maps a stream read or decode failure to its kind.
func classifyStreamError(err error) *Error {
	switch errors.Cause(err).(type) {
	case *gomysql.MyError:
		return &Error{Kind: FatalTransport, Err: err}
	}
	if errors.Cause(err) == decoder.ErrStreamEnd {
		return &Error{Kind: FatalTransport, Err: err}
	}
	return &Error{Kind: FatalDecode, Err: err}
}

// Warning reports drift between the tracked and the server's binlog position.
type Warning struct {
	Message string
	// Difference is the queried offset minus the cached offset.
	Difference int64
	Cached     gomysql.Position
	Queried    gomysql.Position
}

func (w *Warning) String() string {
	return fmt.Sprintf("%s (cached %s, queried %s)", w.Message, w.Cached, w.Queried)
}
