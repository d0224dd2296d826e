package streamer

import (
	"context"
	"sync"
	"testing"
	"time"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
	"github.com/tsywkGo/go-mysql-binlog/streamer/event"
	"github.com/tsywkGo/go-mysql-binlog/streamer/meta"
	"github.com/tsywkGo/go-mysql-binlog/streamer/meta/master"
)

// fakeConn is a streaming session fed through packets.
type fakeConn struct {
	id      uint32
	packets chan []byte

	mu       sync.Mutex
	ops      []string
	dumps    [][]byte
	execErrs map[string]error

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn(id uint32) *fakeConn {
	return &fakeConn{
		id:       id,
		packets:  make(chan []byte, 128),
		execErrs: make(map[string]error),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) Execute(command string, args ...interface{}) (*gomysql.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ops = append(c.ops, "exec:"+command)
	if err, ok := c.execErrs[command]; ok {
		return nil, err
	}
	return &gomysql.Result{}, nil
}

func (c *fakeConn) WritePacket(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ops = append(c.ops, "dump")
	c.dumps = append(c.dumps, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) ReadPacket() ([]byte, error) {
	select {
	case <-c.closed:
		return nil, errors.New("use of closed network connection")
	default:
	}
	select {
	case data := <-c.packets:
		return data, nil
	case <-c.closed:
		return nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) ResetSequence() {}

func (c *fakeConn) GetConnectionID() uint32 {
	return c.id
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) Ops() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.ops...)
}

func (c *fakeConn) Dumps() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([][]byte(nil), c.dumps...)
}

func (c *fakeConn) feed(frames ...[]byte) {
	for _, f := range frames {
		c.packets <- f
	}
}

// fakeControl answers control channel queries from memory.
type fakeControl struct {
	mu          sync.Mutex
	checksum    string
	checksumErr error
	logs        []gomysql.Position
	logsErr     error
	columns     map[string][]meta.Column
	columnsErr  error
	onColumns   func()
	owned       bool

	columnCalls map[string]int
	logCalls    int
	killed      []uint32
	closed      bool
	// calls records Kill and Close in order.
	calls []string
}

func newFakeControl() *fakeControl {
	return &fakeControl{
		checksum:    "CRC32",
		columns:     make(map[string][]meta.Column),
		columnCalls: make(map[string]int),
	}
}

func (c *fakeControl) BinlogChecksum(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.checksum, c.checksumErr
}

func (c *fakeControl) LastBinaryLog(ctx context.Context) (gomysql.Position, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logCalls++
	if c.logsErr != nil {
		return gomysql.Position{}, false, c.logsErr
	}
	if len(c.logs) == 0 {
		return gomysql.Position{}, false, nil
	}
	return c.logs[len(c.logs)-1], true, nil
}

func (c *fakeControl) TableColumns(ctx context.Context, dbName, tbName string) ([]meta.Column, error) {
	c.mu.Lock()
	hook := c.onColumns
	key := dbName + "." + tbName
	c.columnCalls[key]++
	cols, err := c.columns[key], c.columnsErr
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
	return cols, err
}

func (c *fakeControl) Kill(ctx context.Context, connectionID uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.killed = append(c.killed, connectionID)
	c.calls = append(c.calls, "kill")
	return nil
}

func (c *fakeControl) Owned() bool {
	return c.owned
}

func (c *fakeControl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.calls = append(c.calls, "close")
	return nil
}

func (c *fakeControl) setColumns(dbName, tbName string, cols []meta.Column) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.columns[dbName+"."+tbName] = cols
}

func (c *fakeControl) ColumnCalls(dbName, tbName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.columnCalls[dbName+"."+tbName]
}

// recorder is a Handler that keeps every signal.
type recorder struct {
	mu        sync.Mutex
	readyPos  []gomysql.Position
	events    []event.Event
	positions []gomysql.Position
	errs      []error
	warnings  []*Warning
	stopped   int
}

func (r *recorder) OnReady(pos gomysql.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readyPos = append(r.readyPos, pos)
}

func (r *recorder) OnBinlog(ev event.Event, pos gomysql.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	r.positions = append(r.positions, pos)
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) OnWarning(w *Warning) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, w)
}

func (r *recorder) OnStopped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
}

func (r *recorder) String() string {
	return "recorder"
}

func (r *recorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

func (r *recorder) Positions() []gomysql.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]gomysql.Position(nil), r.positions...)
}

func (r *recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) ReadyPositions() []gomysql.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]gomysql.Position(nil), r.readyPos...)
}

func (r *recorder) Stopped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *recorder) Kinds() []string {
	var kinds []string
	for _, ev := range r.Events() {
		kinds = append(kinds, ev.Kind())
	}
	return kinds
}

type harness struct {
	s       *Streamer
	conn    *fakeConn
	control *fakeControl
	rec     *recorder
}

func newHarness(t *testing.T, opts ...Option) *harness {
	h := &harness{
		conn:    newFakeConn(42),
		control: newFakeControl(),
		rec:     &recorder{},
	}
	opts = append([]Option{
		WithControlChannel(h.control),
		WithHandler(h.rec),
		WithDialer(func(ctx context.Context, cfg *master.Config) (IStreamConn, error) {
			return h.conn, nil
		}),
	}, opts...)
	s, err := New(nil, opts...)
	require.NoError(t, err)
	h.s = s
	t.Cleanup(func() { _ = s.Stop() })
	return h
}

func (h *harness) start(t *testing.T, opts SessionOptions) {
	require.NoError(t, h.s.Start(context.Background(), opts))
	require.Equal(t, StateStreaming, h.s.State())
}

func waitFor(t *testing.T, cond func() bool) {
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func intColumns(names ...string) []meta.Column {
	cols := make([]meta.Column, 0, len(names))
	for _, name := range names {
		cols = append(cols, meta.Column{Name: name, ColumnType: "int(11)"})
	}
	return cols
}
