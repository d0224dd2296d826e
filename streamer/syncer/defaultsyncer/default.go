package defaultsyncer

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/errors"
	"github.com/siddontang/go-log/log"
	"github.com/tsywkGo/go-mysql-binlog/streamer/syncer/flusher"
)

type Syncer struct {
	// 同步ID, 快照文件名
	id            string
	flusher       flusher.IFlusher
	flushDuration time.Duration

	sync.RWMutex
	gSet      mysql.GTIDSet
	pos       mysql.Position
	cached    mysql.Position
	timestamp uint32

	// 同步延迟
	latency uint32
}

func New(opts ...Option) (*Syncer, error) {
	syncer := &Syncer{id: _defaultSyncerID, flushDuration: _defaultFlushDuration}
	for _, opt := range opts {
		opt(syncer)
	}
	if err := syncer.initSyncer(); err != nil {
		return nil, err
	}
	return syncer, nil
}

// initSyncer restores the last snapshot when a flusher is configured.
func (s *Syncer) initSyncer() error {
	gSet, err := mysql.ParseMysqlGTIDSet("")
	if err != nil {
		return errors.Trace(err)
	}
	s.gSet = gSet
	if s.flusher == nil {
		return nil
	}

	data, err := s.readSnapshot()
	if err != nil {
		return err
	}
	log.Infof("init syncer %s data:%+v", s.id, data)
	if len(data.GTIDSet) > 0 {
		if s.gSet, err = mysql.ParseMysqlGTIDSet(data.GTIDSet); err != nil {
			return errors.Annotatef(err, "snapshot %s gtid set", s.id)
		}
	}
	s.pos = mysql.Position{Name: data.Name, Pos: data.Pos}
	s.cached = s.pos
	s.timestamp = data.Timestamp
	return nil
}

// Run flushes a snapshot every flush duration until ctx is done, then
// flushes once more.
func (s *Syncer) Run(ctx context.Context) error {
	if s.flusher == nil {
		return errors.New("syncer has no flusher")
	}
	flushTicker := time.NewTicker(s.flushDuration)
	defer flushTicker.Stop()
	for {
		select {
		case <-flushTicker.C:
			if err := s.writeSnapshot(); err != nil {
				log.Errorf("syncer %s write snapshot error:%s", s.id, err)
			}
		case <-ctx.Done():
			return s.writeSnapshot()
		}
	}
}

func (s *Syncer) ID() string {
	return s.id
}

func (s *Syncer) GTIDSet() mysql.GTIDSet {
	s.RLock()
	defer s.RUnlock()

	return s.gSet.Clone()
}

func (s *Syncer) Position() mysql.Position {
	s.RLock()
	defer s.RUnlock()

	return s.pos
}

func (s *Syncer) Cached() mysql.Position {
	s.RLock()
	defer s.RUnlock()

	return s.cached
}

func (s *Syncer) Timestamp() uint32 {
	s.RLock()
	defer s.RUnlock()

	return s.timestamp
}

func (s *Syncer) Latency() uint32 {
	return atomic.LoadUint32(&s.latency)
}

func (s *Syncer) Reset(pos mysql.Position) {
	log.Infof("reset syncer position %s", pos.String())

	s.Lock()
	defer s.Unlock()

	s.pos = pos
	s.cached = pos
}

func (s *Syncer) Advance(nextPos uint32) {
	if nextPos == 0 {
		return
	}
	log.Debugf("advance syncer position to %d", nextPos)

	s.Lock()
	defer s.Unlock()

	s.pos.Pos = nextPos
	s.cached.Pos = nextPos
}

func (s *Syncer) Rotate(name string, pos uint64, nextPos uint32) bool {
	s.Lock()
	defer s.Unlock()

	if name != s.pos.Name {
		// 真正的切换: 续传位置取事件的 next position
		resume := nextPos
		if resume == 0 {
			resume = uint32(pos)
		}
		s.pos = mysql.Position{Name: name, Pos: resume}
		s.cached = mysql.Position{Name: name, Pos: uint32(pos)}
		log.Infof("rotate syncer to %s, cached %s", s.pos.String(), s.cached.String())
		return true
	}

	// 重复的 rotate, 文件名不变
	s.pos.Pos = uint32(pos)
	s.cached = mysql.Position{Name: name, Pos: uint32(pos)}
	log.Debugf("repeated rotate syncer %s", s.pos.String())
	return false
}

func (s *Syncer) UpdateGTID(gtid string) error {
	log.Debugf("update syncer gtid %s", gtid)

	s.Lock()
	defer s.Unlock()

	return errors.Trace(s.gSet.Update(gtid))
}

func (s *Syncer) UpdateTimestamp(ts uint32) {
	log.Debugf("update syncer timestamp %d", ts)

	s.Lock()
	defer s.Unlock()

	s.timestamp = ts
}

func (s *Syncer) UpdateLatency(ts uint32) {
	var latency uint32
	if now := uint32(time.Now().Unix()); now > ts {
		latency = now - ts
	}
	log.Debugf("update syncer latency %d", latency)
	atomic.StoreUint32(&s.latency, latency)
}

type snapshot struct {
	Name      string `json:"name"`
	Pos       uint32 `json:"pos"`
	GTIDSet   string `json:"gtid_set"`
	Timestamp uint32 `json:"timestamp"`
}

func (s *Syncer) writeSnapshot() error {
	pos := s.Position()
	bytes, err := json.Marshal(&snapshot{Name: pos.Name, Pos: pos.Pos, GTIDSet: s.GTIDSet().String(), Timestamp: s.Timestamp()})
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.flusher.Write(s.id, bytes))
}

func (s *Syncer) readSnapshot() (*snapshot, error) {
	bytes, err := s.flusher.Read(s.id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(bytes) == 0 {
		return &snapshot{}, nil
	}
	data := new(snapshot)
	if err := json.Unmarshal(bytes, data); err != nil {
		log.Errorf("readSnapshot id:%s, error:%s", s.id, err)
		return nil, errors.Trace(err)
	}
	return data, nil
}

func (s *Syncer) Close() error {
	if s.flusher == nil {
		return nil
	}
	err := s.writeSnapshot()
	if cerr := s.flusher.Close(); err == nil {
		err = cerr
	}
	return errors.Trace(err)
}
