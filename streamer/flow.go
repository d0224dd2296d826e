package streamer

import (
	"context"
	"sync"

	"github.com/pingcap/errors"
	"github.com/siddontang/go-log/log"
	"github.com/tsywkGo/go-mysql-binlog/streamer/meta"
)

type columnFetcher interface {
	TableColumns(ctx context.Context, dbName, tbName string) ([]meta.Column, error)
}

// FlowController suspends frame reads while a table id is being resolved.
// It owns the only write path into the table meta cache, so at most one
// resolution is ever in flight.
type FlowController struct {
	fetcher columnFetcher
	meta    meta.IMeta

	resolveMu sync.Mutex

	mu     sync.Mutex
	paused bool
	// resumed is closed by Resume and replaced by Pause.
	resumed chan struct{}
}

func NewFlowController(fetcher columnFetcher, tbMeta meta.IMeta) *FlowController {
	resumed := make(chan struct{})
	close(resumed)
	return &FlowController{
		fetcher: fetcher,
		meta:    tbMeta,
		resumed: resumed,
	}
}

func (f *FlowController) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.paused {
		return
	}
	f.paused = true
	f.resumed = make(chan struct{})
}

func (f *FlowController) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.paused {
		return
	}
	f.paused = false
	close(f.resumed)
}

func (f *FlowController) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.paused
}

// Wait blocks until the flow is resumed or ctx is done.
func (f *FlowController) Wait(ctx context.Context) error {
	f.mu.Lock()
	resumed := f.resumed
	f.mu.Unlock()

	select {
	case <-resumed:
		return nil
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}

// Resolve looks up the columns of dbName.tbName for tableID with the flow
// paused, and caches the result.
//
// A lookup that finds no columns resumes the flow and returns a
// RecoverableMeta error. A failed lookup returns a FatalTransport error and
// leaves the flow paused for good.
func (f *FlowController) Resolve(ctx context.Context, tableID uint64, dbName, tbName string) (*meta.Table, error) {
	f.resolveMu.Lock()
	defer f.resolveMu.Unlock()

	f.Pause()
	log.Debugf("resolve table %s.%s, table id %d", dbName, tbName, tableID)

	columns, err := f.fetcher.TableColumns(ctx, dbName, tbName)
	if err != nil {
		log.Errorf("resolve table %s.%s, table id %d error:%s", dbName, tbName, tableID, err)
		return nil, &Error{Kind: FatalTransport, Err: errors.Annotatef(err, "query columns of %s.%s", dbName, tbName)}
	}
	if len(columns) == 0 {
		log.Warnf("no columns found for %s.%s, table id %d", dbName, tbName, tableID)
		f.Resume()
		return nil, &Error{Kind: RecoverableMeta, Err: errors.Annotatef(ErrMissingTableMeta, "%s.%s (table id %d) has no columns, it may be dropped or renamed", dbName, tbName, tableID)}
	}

	tbMeta := meta.NewTable(tableID, dbName, tbName, columns)
	if err := f.meta.Insert(tbMeta); err != nil {
		return nil, &Error{Kind: FatalTransport, Err: errors.Trace(err)}
	}
	f.Resume()
	return tbMeta, nil
}
