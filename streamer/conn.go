package streamer

import (
	"context"

	"github.com/go-mysql-org/go-mysql/client"
	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/errors"
	"github.com/tsywkGo/go-mysql-binlog/streamer/meta"
	"github.com/tsywkGo/go-mysql-binlog/streamer/meta/master"
)

// IStreamConn is the raw packet session the binlog dump runs on.
// *client.Conn implements it.
type IStreamConn interface {
	Execute(command string, args ...interface{}) (*gomysql.Result, error)
	WritePacket(data []byte) error
	ReadPacket() ([]byte, error)
	ResetSequence()
	GetConnectionID() uint32
	Close() error
}

// IControl is the request/response channel for administrative queries.
// *master.Master implements it.
type IControl interface {
	BinlogChecksum(ctx context.Context) (string, error)
	LastBinaryLog(ctx context.Context) (gomysql.Position, bool, error)
	TableColumns(ctx context.Context, dbName, tbName string) ([]meta.Column, error)
	Kill(ctx context.Context, connectionID uint32) error
	// Owned reports whether Close really closes the underlying connection.
	Owned() bool
	Close() error
}

// Dialer opens the streaming session.
type Dialer func(ctx context.Context, cfg *master.Config) (IStreamConn, error)

// DefaultDialer connects with go-mysql's client without selecting a database.
func DefaultDialer(ctx context.Context, cfg *master.Config) (IStreamConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	conn, err := client.Connect(cfg.Addr(), cfg.User, cfg.Password, "")
	if err != nil {
		return nil, errors.Annotatef(err, "connect %s", cfg.Addr())
	}
	if cfg.Charset != "" {
		if err := conn.SetCharset(cfg.Charset); err != nil {
			_ = conn.Close()
			return nil, errors.Annotatef(err, "set charset %s", cfg.Charset)
		}
	}
	return conn, nil
}

var (
	_ IStreamConn = (*client.Conn)(nil)
	_ IControl    = (*master.Master)(nil)
)
