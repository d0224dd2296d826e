package streamer

import (
	"database/sql"
	"math/rand"
	"time"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/siddontang/go-log/log"
	"github.com/tsywkGo/go-mysql-binlog/streamer/matcher/defaultmatcher"
	"github.com/tsywkGo/go-mysql-binlog/streamer/meta"
	"github.com/tsywkGo/go-mysql-binlog/streamer/meta/master"
	"github.com/tsywkGo/go-mysql-binlog/streamer/syncer"
)

// _binlogHeaderSize is the magic number every binlog file starts with; the
// first event sits right after it.
const _binlogHeaderSize = 4

// SessionOptions configure one streaming session. Start copies them, so the
// running session never sees later changes by the caller.
type SessionOptions struct {
	// ServerID identifies this replica and must be unique among the server's
	// replicas. 0 picks a random id in [1001, 2000].
	ServerID   uint32 `toml:"server_id"`
	Filename   string `toml:"filename"`
	Position   uint32 `toml:"position"`
	StartAtEnd bool   `toml:"start_at_end"`
	// CacheInterval is the drift check period in seconds, 0 disables it.
	CacheInterval int64 `toml:"cache_interval"`

	defaultmatcher.FilterSpec
}

func (o SessionOptions) WithDefault() SessionOptions {
	if o.ServerID == 0 {
		o.ServerID = uint32(rand.New(rand.NewSource(time.Now().UnixNano())).Intn(1000)) + 1001
		log.Infof("no server id configured, use random server id %d", o.ServerID)
	}
	if o.Filename != "" && o.Position < _binlogHeaderSize {
		o.Position = _binlogHeaderSize
	}
	return o
}

func (o SessionOptions) Clone() SessionOptions {
	o.FilterSpec = o.FilterSpec.Clone()
	return o
}

func (o SessionOptions) StartPosition() gomysql.Position {
	return gomysql.Position{Name: o.Filename, Pos: o.Position}
}

func (o SessionOptions) CacheDuration() time.Duration {
	return time.Duration(o.CacheInterval) * time.Second
}

type Option func(s *Streamer)

func WithHandler(h Handler) Option {
	return func(s *Streamer) {
		s.handler = h
	}
}

// WithControl reuses db as control channel. It is not closed on Stop.
func WithControl(db *sql.DB) Option {
	return func(s *Streamer) {
		s.control = master.NewWithDB(db)
	}
}

func WithControlChannel(control IControl) Option {
	return func(s *Streamer) {
		s.control = control
	}
}

func WithDialer(dialer Dialer) Option {
	return func(s *Streamer) {
		s.dialer = dialer
	}
}

// WithSyncer replaces the in-memory position tracker, e.g. with one that
// checkpoints to disk.
func WithSyncer(sc syncer.ISyncer) Option {
	return func(s *Streamer) {
		s.syncer = sc
	}
}

func WithMeta(m meta.IMeta) Option {
	return func(s *Streamer) {
		s.meta = m
	}
}
