package db

import (
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/yeisme/agrivault/pkg/configs"
)

// createSQLiteDialector 创建SQLite dialector（glebarez 纯 Go 驱动，无 cgo）.
func createSQLiteDialector(dsn string) gorm.Dialector {
	return sqlite.Open(dsn)
}

func init() {
	RegisterDialectorFactory(configs.SQLite, createSQLiteDialector)
}
