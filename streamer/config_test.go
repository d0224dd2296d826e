package streamer

import (
	"testing"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsywkGo/go-mysql-binlog/streamer/matcher/defaultmatcher"
)

const _testConfig = `
[meta_config.master_config]
host = "127.0.0.1"
port = 3307
user = "canal"
password = "canal"

[session_config]
server_id = 1101
filename = "mysql-bin.000003"
position = 154
cache_interval = 30
include_events = ["tablemap", "writerows", "updaterows", "deleterows"]
exclude_regex = ["mysql\\..*"]

[session_config.include_schema]
shop = true
crm = ["users", "orders"]

[session_config.exclude_schema]
crm = ["orders"]

[syncer_config]
syncer_id = "shop"
flush_dir = "/var/lib/binlog-stream"
flush_duration_second = 10
`

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig(_testConfig)
	require.NoError(t, err)

	mc := cfg.MetaConfig.MasterConfig
	require.NotNil(t, mc)
	assert.Equal(t, "127.0.0.1:3307", mc.Addr())
	assert.Equal(t, "canal", mc.User)

	sc := cfg.SessionConfig
	assert.Equal(t, uint32(1101), sc.ServerID)
	assert.Equal(t, gomysql.Position{Name: "mysql-bin.000003", Pos: 154}, sc.StartPosition())
	assert.False(t, sc.StartAtEnd)
	assert.Equal(t, int64(30), sc.CacheInterval)
	assert.Len(t, sc.IncludeEvents, 4)
	assert.Equal(t, []string{`mysql\..*`}, sc.ExcludeRegex)
	assert.True(t, sc.IncludeSchema["shop"].All)
	assert.True(t, sc.IncludeSchema.Contains("crm", "users"))
	assert.False(t, sc.IncludeSchema.Contains("crm", "logs"))
	assert.True(t, sc.ExcludeSchema.Contains("crm", "orders"))

	assert.Equal(t, "shop", cfg.SyncerConfig.SyncerID)
	assert.Equal(t, "/var/lib/binlog-stream", cfg.SyncerConfig.FlushDir)
	assert.Equal(t, int64(10), cfg.SyncerConfig.FlushDurationSecond)
}

func TestNewConfig_Invalid(t *testing.T) {
	_, err := NewConfig("[session_config]\nserver_id = \"abc\"")
	assert.Error(t, err)

	_, err = NewConfig("[session_config.include_schema]\nshop = false")
	assert.Error(t, err)

	_, err = NewConfigWithFile("testdata/does-not-exist.toml")
	assert.Error(t, err)
}

func TestSessionOptions_WithDefault(t *testing.T) {
	opts := SessionOptions{Filename: "mysql-bin.000001"}.WithDefault()
	assert.GreaterOrEqual(t, opts.ServerID, uint32(1001))
	assert.LessOrEqual(t, opts.ServerID, uint32(2000))
	assert.Equal(t, uint32(4), opts.Position)

	opts = SessionOptions{ServerID: 7, Filename: "mysql-bin.000001", Position: 120}.WithDefault()
	assert.Equal(t, uint32(7), opts.ServerID)
	assert.Equal(t, uint32(120), opts.Position)

	opts = SessionOptions{ServerID: 7}.WithDefault()
	assert.Equal(t, gomysql.Position{}, opts.StartPosition(), "no file means the server picks the first log")
}

func TestSessionOptions_Clone(t *testing.T) {
	opts := SessionOptions{
		ServerID: 7,
		FilterSpec: defaultmatcher.FilterSpec{
			IncludeEvents: []string{"xid"},
			IncludeSchema: defaultmatcher.SchemaSet{"db1": defaultmatcher.Tables("t1")},
		},
	}
	clone := opts.Clone()
	opts.IncludeEvents[0] = "query"
	opts.IncludeSchema["db1"].Tables["t2"] = struct{}{}

	assert.Equal(t, []string{"xid"}, clone.IncludeEvents)
	assert.False(t, clone.IncludeSchema.Contains("db1", "t2"))
}
