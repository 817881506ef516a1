package configs

import (
	"github.com/spf13/viper"
)

type (
	DBType string
)

const (
	// SQLite 纯 Go 驱动（glebarez），设备端唯一受支持的记账库.
	SQLite DBType = "sqlite"
)

const (
	DefaultDatabasePath = "data/agrivault.db" // 默认数据库文件路径
	DefaultMaxOpenConns = 1                   // sqlite 写入串行化，单连接足够
	DefaultMaxIdleConns = 1                   // 默认最大空闲连接数
)

// DBConfig 数据库配置.
type DBConfig struct {
	Type         DBType `mapstructure:"type"           rule:"oneof=sqlite"`
	Path         string `mapstructure:"path"           rule:"required"`
	MaxOpenConns int    `mapstructure:"max_open_conns" rule:"min=1"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" rule:"min=0"`
}

// GetDBType 返回数据库类型的字符串表示.
func (c *DBConfig) GetDBType() string {
	switch c.Type {
	case SQLite:
		return "SQLite"
	default:
		return "Unknown"
	}
}

// GetDSN 获取数据库的连接字符串. sqlite 的 DSN 就是文件路径，
// 测试可使用 ":memory:".
func (c *DBConfig) GetDSN() string {
	if c.Type != SQLite {
		return ""
	}

	return c.Path
}

// setDefaults 设置数据库配置的默认值.
func (c *DBConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("db.type", string(SQLite))
	v.SetDefault("db.path", DefaultDatabasePath)
	v.SetDefault("db.max_open_conns", DefaultMaxOpenConns)
	v.SetDefault("db.max_idle_conns", DefaultMaxIdleConns)
}
