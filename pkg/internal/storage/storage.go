// Package storage 聚合设备端的存储资源：记账库、KV 端口与文件区.
//
// Example:
//
//	ctx := context.Background()
//	mgr, err := storage.Init(ctx)
//	if err != nil {
//	    // 处理错误
//	}
//
//	dbClient := mgr.GetDBClient()
//	kvClient := mgr.GetKVClient()
package storage

import (
	"context"
	"sync"

	"github.com/yeisme/agrivault/pkg/configs"
	"github.com/yeisme/agrivault/pkg/internal/storage/areas"
	dbc "github.com/yeisme/agrivault/pkg/internal/storage/db"
	kvc "github.com/yeisme/agrivault/pkg/internal/storage/kv"
	nlog "github.com/yeisme/agrivault/pkg/log"
)

// Manager 聚合所有存储资源.
type Manager struct {
	DB    *dbc.Client
	KV    *kvc.Client
	Areas *areas.Manager
}

var (
	mgr     *Manager
	mgrOnce sync.Once
)

// Init 初始化默认存储，使用全局配置. 重复调用只返回已初始化实例.
func Init(ctx context.Context) (*Manager, error) {
	var err error

	mgrOnce.Do(func() {
		cfg := configs.GetConfig()
		m := &Manager{}

		// DB
		dbi, e := dbc.New(ctx, &cfg.DB)
		if e != nil {
			err = e

			return
		}

		m.DB = dbi

		// KV（sqlite 类型复用记账库连接）
		kvi, e := kvc.NewKVClient(ctx, dbi.GetDB())
		if e != nil {
			err = e

			return
		}

		m.KV = kvi

		// 文件区
		ai, e := areas.New(&cfg.Areas)
		if e != nil {
			err = e

			return
		}

		m.Areas = ai

		mgr = m

		nlog.Logger().Info().Msg("storage manager initialized")
	})

	return mgr, err
}

// GetDBClient 获取 DB 客户端.
func (m *Manager) GetDBClient() *dbc.Client {
	return m.DB
}

// GetKVClient 获取 KV 客户端.
func (m *Manager) GetKVClient() *kvc.Client {
	return m.KV
}

// GetAreas 获取文件区管理器.
func (m *Manager) GetAreas() *areas.Manager {
	return m.Areas
}
