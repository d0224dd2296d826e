package localflusher

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pingcap/errors"
	"github.com/siddontang/go-log/log"
)

// Flusher keeps one file per key under <dir>/binlog-stream/snapshot.
type Flusher struct {
	dir string
}

func New(opts ...Option) (*Flusher, error) {
	flusher := &Flusher{dir: _defaultDir}
	for _, opt := range opts {
		opt(flusher)
	}
	if err := os.MkdirAll(flusher.snapshotDir(), 0755); err != nil {
		return nil, errors.Trace(err)
	}
	log.Infof("flusher snapshot dir:%s", flusher.snapshotDir())
	return flusher, nil
}

// Write replaces the file through a rename so a crash never leaves half a snapshot.
func (f *Flusher) Write(key string, data []byte) error {
	tmp, err := ioutil.TempFile(f.snapshotDir(), key+".*.tmp")
	if err != nil {
		return errors.Trace(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Trace(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Trace(err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(os.Rename(tmp.Name(), f.filepath(key)))
}

func (f *Flusher) Read(key string) ([]byte, error) {
	data, err := ioutil.ReadFile(f.filepath(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, errors.Trace(err)
}

func (f *Flusher) Close() error {
	return nil
}

func (f *Flusher) snapshotDir() string {
	return filepath.Join(f.dir, "binlog-stream", "snapshot")
}

func (f *Flusher) filepath(key string) string {
	return filepath.Join(f.snapshotDir(), key)
}
