package streamer

import (
	"context"
	"sync"
	"testing"
	"time"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsywkGo/go-mysql-binlog/streamer/syncer/defaultsyncer"
)

func newTrackedSyncer(t *testing.T, pos gomysql.Position) *defaultsyncer.Syncer {
	sc, err := defaultsyncer.New()
	require.NoError(t, err)
	sc.Reset(pos)
	return sc
}

func TestDriftMonitor_Check(t *testing.T) {
	cached := gomysql.Position{Name: "mysql-bin.000001", Pos: 100}

	tests := []struct {
		name    string
		queried gomysql.Position
		diff    int64
		warn    bool
	}{
		{name: "server ahead", queried: gomysql.Position{Name: "mysql-bin.000001", Pos: 300}, diff: 200, warn: true},
		{name: "in sync", queried: gomysql.Position{Name: "mysql-bin.000001", Pos: 100}},
		{name: "server behind", queried: gomysql.Position{Name: "mysql-bin.000001", Pos: 50}},
		{name: "other file", queried: gomysql.Position{Name: "mysql-bin.000002", Pos: 4}, diff: -96, warn: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			control := newFakeControl()
			control.logs = []gomysql.Position{tt.queried}
			m := NewDriftMonitor(time.Second, control, newTrackedSyncer(t, cached), nil)

			w, err := m.Check(context.Background())
			require.NoError(t, err)
			if !tt.warn {
				assert.Nil(t, w)
				return
			}
			require.NotNil(t, w)
			assert.Equal(t, tt.diff, w.Difference)
			assert.Equal(t, cached, w.Cached)
			assert.Equal(t, tt.queried, w.Queried)
			assert.Contains(t, w.String(), cached.String())
		})
	}
}

func TestDriftMonitor_CheckErrors(t *testing.T) {
	sc := newTrackedSyncer(t, gomysql.Position{Name: "mysql-bin.000001", Pos: 4})

	control := newFakeControl()
	_, err := NewDriftMonitor(time.Second, control, sc, nil).Check(context.Background())
	assert.Error(t, err, "no binary logs")

	control.logsErr = errors.New("Access denied; you need the SUPER or REPLICATION CLIENT privilege")
	_, err = NewDriftMonitor(time.Second, control, sc, nil).Check(context.Background())
	assert.Error(t, err)
}

func TestDriftMonitor_Run(t *testing.T) {
	control := newFakeControl()
	control.logs = []gomysql.Position{{Name: "mysql-bin.000001", Pos: 500}}
	sc := newTrackedSyncer(t, gomysql.Position{Name: "mysql-bin.000001", Pos: 4})

	var (
		mu       sync.Mutex
		warnings []*Warning
	)
	m := NewDriftMonitor(10*time.Millisecond, control, sc, func(w *Warning) {
		mu.Lock()
		defer mu.Unlock()
		warnings = append(warnings, w)
	})
	m.Start(context.Background())
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(warnings) >= 2
	})
	m.Stop()

	mu.Lock()
	n := len(warnings)
	assert.Equal(t, int64(496), warnings[0].Difference)
	mu.Unlock()

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, n, len(warnings), "no ticks after stop")
	mu.Unlock()
}

func TestDriftMonitor_KeepsRunningOnError(t *testing.T) {
	control := newFakeControl()
	control.logsErr = errors.New("server has gone away")
	m := NewDriftMonitor(10*time.Millisecond, control, newTrackedSyncer(t, gomysql.Position{}), func(*Warning) {
		t.Error("unexpected warning")
	})
	m.Start(context.Background())
	waitFor(t, func() bool {
		control.mu.Lock()
		defer control.mu.Unlock()
		return control.logCalls >= 3
	})
	m.Stop()
}

func TestDriftMonitor_Disabled(t *testing.T) {
	control := newFakeControl()
	m := NewDriftMonitor(0, control, newTrackedSyncer(t, gomysql.Position{}), nil)
	m.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	m.Stop()
	assert.Equal(t, 0, control.logCalls)
}
