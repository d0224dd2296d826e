package master

import (
	"encoding/json"
	"fmt"
	"net/url"
)

const (
	_defaultDBName                 = "information_schema"
	_defaultNetwork                = "tcp"
	_defaultPort            uint16 = 3306
	_defaultConnMaxLifetime        = 100 // 单位:s
	_defaultMaxOpenConns           = 2
	_defaultMaxIdleConns           = 2

	_checksumStatement     = "SELECT @@GLOBAL.binlog_checksum AS checksum"
	_binaryLogsStatement   = "SHOW BINARY LOGS"
	_binlogFormatStatement = "SHOW GLOBAL VARIABLES LIKE 'binlog_format'"
	_tableColumnsStatement = `SELECT COLUMN_NAME, COLLATION_NAME, CHARACTER_SET_NAME, COLUMN_COMMENT, COLUMN_TYPE
FROM information_schema.columns
WHERE table_schema = ? AND table_name = ?
ORDER BY ORDINAL_POSITION`
)

// Config holds the raw connection parameters. They are used for the control
// connection (when the master owns it) and for the streaming connection.
type Config struct {
	Host            string `toml:"host"`
	Port            uint16 `toml:"port"`
	User            string `toml:"user"`
	Password        string `toml:"password"`
	// Charset is set on both connections, empty keeps the driver default.
	Charset         string `toml:"charset"`
	ConnMaxLifetime int    `toml:"conn_max_lifetime"`
	MaxOpenConns    int    `toml:"max_open_conns"`
	MaxIdleConns    int    `toml:"max_idle_conns"`
}

func (c *Config) String() string {
	if c == nil {
		return ""
	}
	masked := *c
	if masked.Password != "" {
		masked.Password = "******"
	}
	bytes, _ := json.Marshal(&masked)
	return string(bytes)
}

func (c *Config) WithDefault() *Config {
	if c.Port == 0 {
		c.Port = _defaultPort
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = _defaultConnMaxLifetime
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = _defaultMaxOpenConns
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = _defaultMaxIdleConns
	}
	return c
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if c.MaxOpenConns > 0 && c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max_idle_conns must less than max_open_conns")
	}
	if c.MaxOpenConns < 0 {
		return fmt.Errorf("max_open_conns must greater than 1")
	}
	return nil
}

// Addr is host:port, as go-mysql client.Connect expects it.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) encodeDSN() string {
	dsn := fmt.Sprintf(
		"%s:%s@%s(%s)/%s",
		c.User, c.Password, _defaultNetwork, c.Addr(), _defaultDBName,
	)
	if c.Charset != "" {
		dsn += "?charset=" + url.QueryEscape(c.Charset)
	}
	return dsn
}
