// Package context 拓展上下文功能，将存储资源集成到上下文中，方便在应用程序各处传递和使用.
package context

import (
	"context"

	"github.com/yeisme/agrivault/pkg/internal/storage"
	"github.com/yeisme/agrivault/pkg/internal/storage/areas"
	dbc "github.com/yeisme/agrivault/pkg/internal/storage/db"
	kvc "github.com/yeisme/agrivault/pkg/internal/storage/kv"
)

type ContextKey string

const (
	StorageManagerKey ContextKey = "storageManager"
)

// WithStorageManager 将 Manager 存储到 context 中.
func WithStorageManager(ctx context.Context, mgr *storage.Manager) context.Context {
	return context.WithValue(ctx, StorageManagerKey, mgr)
}

// GetManager 从 context 中获取 Manager.
func GetManager(ctx context.Context) *storage.Manager {
	if mgr, ok := ctx.Value(StorageManagerKey).(*storage.Manager); ok {
		return mgr
	}

	return nil
}

// GetDBClient 从 context 中获取 DB 客户端.
func GetDBClient(ctx context.Context) *dbc.Client {
	if mgr := GetManager(ctx); mgr != nil {
		return mgr.GetDBClient()
	}

	return nil
}

// GetKVClient 从 context 中获取 KV 客户端.
func GetKVClient(ctx context.Context) *kvc.Client {
	if mgr := GetManager(ctx); mgr != nil {
		return mgr.GetKVClient()
	}

	return nil
}

// GetAreas 从 context 中获取文件区管理器.
func GetAreas(ctx context.Context) *areas.Manager {
	if mgr := GetManager(ctx); mgr != nil {
		return mgr.GetAreas()
	}

	return nil
}
