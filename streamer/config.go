package streamer

import (
	"io/ioutil"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
	"github.com/tsywkGo/go-mysql-binlog/streamer/meta/master"
)

type Config struct {
	MetaConfig struct {
		MasterConfig *master.Config `toml:"master_config"`
	} `toml:"meta_config"`

	SessionConfig SessionOptions `toml:"session_config"`

	// SyncerConfig configures the caller side checkpoint of cmd/binlog-stream.
	SyncerConfig struct {
		SyncerID            string `toml:"syncer_id"`
		FlushDir            string `toml:"flush_dir"`
		FlushDurationSecond int64  `toml:"flush_duration_second"`
	} `toml:"syncer_config"`
}

func NewConfigWithFile(name string) (*Config, error) {
	data, err := ioutil.ReadFile(name)
	if err != nil {
		return nil, errors.Trace(err)
	}

	return NewConfig(string(data))
}

func NewConfig(data string) (*Config, error) {
	var c Config

	_, err := toml.Decode(data, &c)
	if err != nil {
		return nil, errors.Trace(err)
	}

	return &c, nil
}
