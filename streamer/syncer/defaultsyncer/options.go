package defaultsyncer

import (
	"time"

	"github.com/tsywkGo/go-mysql-binlog/streamer/syncer/flusher"
)

const (
	_defaultSyncerID      = "default"
	_defaultFlushDuration = 60 * time.Second
)

type Option func(syncer *Syncer)

func WithSyncerID(id string) Option {
	return func(syncer *Syncer) {
		if len(id) == 0 {
			id = _defaultSyncerID
		}
		syncer.id = id
	}
}

func WithFlusher(flusher flusher.IFlusher) Option {
	return func(syncer *Syncer) {
		syncer.flusher = flusher
	}
}

func WithFlushDuration(duration time.Duration) Option {
	return func(syncer *Syncer) {
		if duration > 0 {
			syncer.flushDuration = duration
		}
	}
}
