package defaultmeta

import (
	"strconv"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pingcap/errors"
	"github.com/siddontang/go-log/log"
	"github.com/tsywkGo/go-mysql-binlog/streamer/meta"
)

// Meta is the table map cache. Resolved tables stay until Close.
type Meta struct {
	cache *gocache.Cache
}

func New() *Meta {
	return &Meta{cache: gocache.New(gocache.NoExpiration, 0)}
}

func (m *Meta) Close() error {
	m.cache.Flush()
	return nil
}

func (m *Meta) Get(tableID uint64) (*meta.Table, bool) {
	val, ok := m.cache.Get(m.encodeTableID(tableID))
	if !ok {
		return nil, false
	}
	return val.(*meta.Table), true
}

func (m *Meta) Insert(tbMeta *meta.Table) error {
	if tbMeta == nil {
		return errors.New("nil table meta")
	}
	log.Debugf("cache table meta %s, columns %d", tbMeta.String(), len(tbMeta.Columns))
	m.cache.Set(m.encodeTableID(tbMeta.ID), tbMeta, gocache.NoExpiration)
	return nil
}

func (m *Meta) Len() int {
	return m.cache.ItemCount()
}

func (m *Meta) encodeTableID(tableID uint64) string {
	return strconv.FormatUint(tableID, 10)
}
