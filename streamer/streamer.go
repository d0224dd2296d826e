// Package streamer is a MySQL binlog change data capture client. It runs a
// binlog dump over one connection, resolves table schemas over a second
// control connection and hands every decoded event to a Handler, in order,
// together with the position to resume after it.
package streamer

import (
	"context"
	"encoding/binary"
	"strings"
	"sync"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/errors"
	"github.com/pingcap/parser"
	_ "github.com/pingcap/parser/test_driver"
	"github.com/siddontang/go-log/log"
	"golang.org/x/sync/errgroup"

	"github.com/tsywkGo/go-mysql-binlog/streamer/decoder"
	"github.com/tsywkGo/go-mysql-binlog/streamer/event"
	"github.com/tsywkGo/go-mysql-binlog/streamer/matcher"
	"github.com/tsywkGo/go-mysql-binlog/streamer/matcher/defaultmatcher"
	"github.com/tsywkGo/go-mysql-binlog/streamer/meta"
	"github.com/tsywkGo/go-mysql-binlog/streamer/meta/defaultmeta"
	"github.com/tsywkGo/go-mysql-binlog/streamer/meta/master"
	"github.com/tsywkGo/go-mysql-binlog/streamer/syncer"
	"github.com/tsywkGo/go-mysql-binlog/streamer/syncer/defaultsyncer"
)

const (
	_masterChecksumStatement = "SET @master_binlog_checksum = @@global.binlog_checksum"
	_openSessionStatement    = "SELECT 1"
	_checksumNone            = "NONE"
)

type Streamer struct {
	// 连接配置
	cfg    *Config
	dialer Dialer

	// 控制连接: checksum, binlog 列表, 表结构, KILL
	control IControl

	// 表结构缓存, 只通过 flow 写入
	meta meta.IMeta
	flow *FlowController

	// 位点
	syncer syncer.ISyncer

	// DDL 解析, 只在读循环中使用
	parser *parser.Parser

	handler    Handler
	dispatcher *dispatcher

	mu      sync.Mutex
	state   State
	ready   bool
	opts    SessionOptions
	matcher matcher.IMatcher
	conn    IStreamConn
	decoder *decoder.Decoder
	monitor *DriftMonitor

	// pending holds table maps whose resolution found no columns, by table id.
	// Only the read loop touches it.
	pending map[uint64]*event.TableMapEvent
	// tableMaps holds the last table map per table id, for row decoding.
	// Only the read loop touches it.
	tableMaps map[uint64]*event.TableMapEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a streamer. Without WithControl or WithControlChannel it opens
// and owns a control connection from cfg.
func New(cfg *Config, opts ...Option) (*Streamer, error) {
	if cfg == nil {
		cfg = new(Config)
	}
	s := &Streamer{
		cfg:     cfg,
		handler: &DummyHandler{},
		state:   StateCreated,
		pending:   make(map[uint64]*event.TableMapEvent),
		tableMaps: make(map[uint64]*event.TableMapEvent),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.control == nil || s.dialer == nil {
		if cfg.MetaConfig.MasterConfig == nil {
			return nil, errors.New("master config is required")
		}
		if err := cfg.MetaConfig.MasterConfig.WithDefault().Validate(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if s.dialer == nil {
		s.dialer = DefaultDialer
	}
	if s.control == nil {
		m, err := master.New(cfg.MetaConfig.MasterConfig)
		if err != nil {
			return nil, errors.Trace(err)
		}
		s.control = m
	}
	if s.meta == nil {
		s.meta = defaultmeta.New()
	}
	if s.syncer == nil {
		sc, err := defaultsyncer.New()
		if err != nil {
			return nil, errors.Trace(err)
		}
		s.syncer = sc
	}

	s.flow = NewFlowController(s.control, s.meta)
	s.dispatcher = newDispatcher(s.handler)
	s.parser = parser.New()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

func (s *Streamer) Ctx() context.Context {
	return s.ctx
}

// Done is closed once OnStopped has returned.
func (s *Streamer) Done() <-chan struct{} {
	return s.dispatcher.done
}

func (s *Streamer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Ready reports whether bootstrap completed.
func (s *Streamer) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ready
}

// Options returns the options of the current session.
func (s *Streamer) Options() SessionOptions {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.opts.Clone()
}

// Position returns the position to resume from.
func (s *Streamer) Position() gomysql.Position {
	return s.syncer.Position()
}

func (s *Streamer) GetLatency() uint32 {
	return s.syncer.Latency()
}

// Start negotiates the session with the server and starts streaming in the
// background. Bootstrap failures are returned here and leave the streamer
// Failed; later failures go to Handler.OnError.
func (s *Streamer) Start(ctx context.Context, opts SessionOptions) error {
	opts = opts.WithDefault().Clone()
	m, err := defaultmatcher.New(defaultmatcher.WithFilterSpec(opts.FilterSpec))
	if err != nil {
		return errors.Trace(err)
	}

	if err := s.transit(StateConfiguring); err != nil {
		return err
	}
	s.mu.Lock()
	s.opts = opts
	s.matcher = m
	s.mu.Unlock()
	log.Infof("start streamer, server id %d, position %s, start at end %v", opts.ServerID, opts.StartPosition(), opts.StartAtEnd)

	if err := s.transit(StateNegotiating); err != nil {
		return err
	}
	conn, err := s.dialer(ctx, s.cfg.MetaConfig.MasterConfig)
	if err != nil {
		return s.failStart(&Error{Kind: FatalTransport, Err: errors.Trace(err)})
	}
	if !s.attach(conn) {
		_ = conn.Close()
		return errors.Annotate(ErrInvalidState, "stopped during bootstrap")
	}

	checksum, pos, err := s.bootstrap(ctx, conn, opts)
	if err != nil {
		return s.failStart(&Error{Kind: FatalTransport, Err: err})
	}
	s.syncer.Reset(pos)

	s.mu.Lock()
	s.decoder = decoder.New(decoder.WithChecksum(checksum))
	s.ready = true
	s.mu.Unlock()
	log.Infof("streamer ready, checksum %v, position %s", checksum, pos)
	s.signal(func(h Handler) { h.OnReady(pos) })

	conn.ResetSequence()
	if err := conn.WritePacket(encodeBinlogDump(pos, opts.ServerID)); err != nil {
		return s.failStart(&Error{Kind: FatalTransport, Err: errors.Annotate(err, "send binlog dump")})
	}

	s.mu.Lock()
	if !s.state.canTransit(StateStreaming) {
		s.mu.Unlock()
		return errors.Annotate(ErrInvalidState, "stopped during bootstrap")
	}
	log.Infof("streamer %s -> %s", s.state, StateStreaming)
	s.state = StateStreaming
	s.monitor = NewDriftMonitor(opts.CacheDuration(), s.control, s.syncer, func(w *Warning) {
		log.Warnf("binlog position drift: %s", w)
		s.signal(func(h Handler) { h.OnWarning(w) })
	})
	s.monitor.Start(s.ctx)
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run()
	return nil
}

// bootstrap runs checksum negotiation and, when asked, binlog end discovery
// concurrently.
func (s *Streamer) bootstrap(ctx context.Context, conn IStreamConn, opts SessionOptions) (bool, gomysql.Position, error) {
	var (
		checksum bool
		pos      = opts.StartPosition()
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		checksum, err = s.negotiateChecksum(gctx, conn)
		return err
	})
	if opts.StartAtEnd {
		g.Go(func() error {
			last, ok, err := s.control.LastBinaryLog(gctx)
			if err != nil {
				return errors.Annotate(err, "find binlog end")
			}
			if ok {
				pos = last
			} else {
				log.Warnf("server reports no binary logs, keep position %s", pos)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, pos, err
	}
	return checksum, pos, nil
}

func (s *Streamer) negotiateChecksum(ctx context.Context, conn IStreamConn) (bool, error) {
	checksum, err := s.control.BinlogChecksum(ctx)
	if err != nil {
		if !master.IsUnknownSystemVariable(err) {
			return false, errors.Annotate(err, "query binlog checksum")
		}
		log.Infof("server does not support binlog checksum")
		if _, err := conn.Execute(_openSessionStatement); err != nil {
			return false, errors.Annotate(err, "open binlog session")
		}
		return false, nil
	}
	if strings.EqualFold(checksum, _checksumNone) {
		return false, nil
	}
	if _, err := conn.Execute(_masterChecksumStatement); err != nil {
		return false, errors.Annotate(err, "set master binlog checksum")
	}
	return true, nil
}

// encodeBinlogDump builds COM_BINLOG_DUMP, leaving room for the packet header.
func encodeBinlogDump(pos gomysql.Position, serverID uint32) []byte {
	data := make([]byte, 4+1+4+2+4+len(pos.Name))
	i := 4
	data[i] = gomysql.COM_BINLOG_DUMP
	i++
	binary.LittleEndian.PutUint32(data[i:], pos.Pos)
	i += 4
	// flags 0: block at the end of the log instead of sending EOF
	binary.LittleEndian.PutUint16(data[i:], 0)
	i += 2
	binary.LittleEndian.PutUint32(data[i:], serverID)
	i += 4
	copy(data[i:], pos.Name)
	return data
}

// Stop tears the session down: stream connection, then KILL of its thread on
// the control channel, then the control channel when owned. It waits for the
// read loop and queues OnStopped as the last callback; Done is closed once it
// ran. Stop may be called from a Handler callback.
func (s *Streamer) Stop() error {
	s.mu.Lock()
	if !s.state.canTransit(StateStopping) {
		s.mu.Unlock()
		return nil
	}
	log.Infof("streamer %s -> %s", s.state, StateStopping)
	s.state = StateStopping
	conn := s.conn
	monitor := s.monitor
	s.mu.Unlock()

	s.cancel()
	if monitor != nil {
		monitor.Stop()
	}
	if conn != nil {
		connID := conn.GetConnectionID()
		if err := conn.Close(); err != nil {
			log.Warnf("close binlog connection error:%s", err)
		}
		if err := s.control.Kill(context.Background(), connID); err != nil {
			log.Warnf("kill binlog connection %d error:%s", connID, err)
		}
	}
	if s.control.Owned() {
		if err := s.control.Close(); err != nil {
			log.Warnf("close control connection error:%s", err)
		}
	}
	s.wg.Wait()
	_ = s.meta.Close()

	if err := s.transit(StateStopped); err != nil {
		return err
	}
	s.dispatcher.close(func(h Handler) { h.OnStopped() })
	return nil
}

// run is the read loop. Frames are read one at a time and only while the
// flow is not paused.
func (s *Streamer) run() {
	defer s.wg.Done()

	s.mu.Lock()
	conn, dec := s.conn, s.decoder
	s.mu.Unlock()

	for {
		if err := s.flow.Wait(s.ctx); err != nil {
			return
		}
		data, err := conn.ReadPacket()
		if err != nil {
			if s.ctx.Err() == nil {
				s.fail(&Error{Kind: FatalTransport, Err: errors.Annotate(err, "read binlog packet")})
			}
			return
		}
		ev, err := dec.Decode(data)
		if err != nil {
			if s.ctx.Err() == nil {
				s.fail(classifyStreamError(err))
			}
			return
		}
		if err := s.handleEvent(ev); err != nil {
			// the flow stays paused, Wait returns once Stop cancels
			s.fail(err)
		}
	}
}

func (s *Streamer) attach(conn IStreamConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNegotiating {
		return false
	}
	s.conn = conn
	return true
}

func (s *Streamer) transit(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.canTransit(to) {
		return errors.Annotatef(ErrInvalidState, "%s -> %s", s.state, to)
	}
	log.Infof("streamer %s -> %s", s.state, to)
	s.state = to
	return nil
}

// failStart marks a bootstrap failure. The error is returned to the caller
// of Start, not signalled.
func (s *Streamer) failStart(err *Error) error {
	if terr := s.transit(StateFailed); terr != nil {
		// Stop won the race; its teardown explains the failure
		return errors.Annotate(ErrInvalidState, err.Error())
	}
	log.Errorf("streamer bootstrap error:%s", err)
	return err
}

// fail enters Failed and signals err, once. Failures after Stop started are
// expected and dropped.
func (s *Streamer) fail(err *Error) {
	if terr := s.transit(StateFailed); terr != nil {
		log.Debugf("drop error after stop:%s", err)
		return
	}
	log.Errorf("streamer error:%s", err)
	s.signal(func(h Handler) { h.OnError(err) })
}

func (s *Streamer) signal(fn func(h Handler)) {
	s.dispatcher.push(fn)
}
