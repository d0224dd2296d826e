package streamer

import (
	"context"
	"fmt"
	"sync"
	"time"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/errors"
	"github.com/siddontang/go-log/log"
	"github.com/tsywkGo/go-mysql-binlog/streamer/syncer"
)

type binlogTail interface {
	LastBinaryLog(ctx context.Context) (gomysql.Position, bool, error)
}

// DriftMonitor compares the tracked cached position with the server's last
// binary log on every tick. It only reports, it never corrects.
type DriftMonitor struct {
	interval time.Duration
	tail     binlogTail
	syncer   syncer.ISyncer
	warn     func(w *Warning)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDriftMonitor(interval time.Duration, tail binlogTail, s syncer.ISyncer, warn func(w *Warning)) *DriftMonitor {
	return &DriftMonitor{
		interval: interval,
		tail:     tail,
		syncer:   s,
		warn:     warn,
	}
}

// Start runs the ticker until Stop or ctx is done. A zero interval disables it.
func (m *DriftMonitor) Start(ctx context.Context) {
	if m.interval <= 0 {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w, err := m.Check(ctx)
				if err != nil {
					if ctx.Err() == nil {
						log.Errorf("drift monitor check binlog position error:%s", err)
					}
					continue
				}
				if w != nil {
					m.warn(w)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Check queries the server once. It returns a warning when the server is
// ahead of the cached position or on another file.
func (m *DriftMonitor) Check(ctx context.Context) (*Warning, error) {
	queried, ok, err := m.tail.LastBinaryLog(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if !ok {
		return nil, errors.New("server reports no binary logs")
	}
	cached := m.syncer.Cached()
	diff := int64(queried.Pos) - int64(cached.Pos)
	if diff <= 0 && queried.Name == cached.Name {
		return nil, nil
	}
	return &Warning{
		Message:    fmt.Sprintf("current and cached position mismatch: %d", diff),
		Difference: diff,
		Cached:     cached,
		Queried:    queried,
	}, nil
}

func (m *DriftMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
