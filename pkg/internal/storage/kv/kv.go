// Package kv 提供用于键值存储的接口和实现. 配额配置、访问时间戳、未同步清单
// 与清理标记都通过这个扁平命名空间端口持久化.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yeisme/agrivault/pkg/configs"
)

type Client struct {
	KVStore
}

// ErrKeyNotFound 键不存在（或已过期）. 各实现统一用它包装未命中，
// 调用方通过 errors.Is 区分未命中与真实故障.
var ErrKeyNotFound = errors.New("key not found")

// KVStore 定义键值存储接口.
type KVStore interface {
	// Get 获取键的值.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set 设置键的值，可选过期时间.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete 删除键.
	Delete(ctx context.Context, key string) error
	// Exists 检查键是否存在.
	Exists(ctx context.Context, key string) (bool, error)
	// Keys 列出匹配模式的键；模式支持尾部 '*' 前缀匹配，空串表示全部.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Close 关闭存储连接.
	Close() error
}

// KVType 键值存储类型.
type KVType string

const (
	KVTypeSQLite KVType = "sqlite"
	KVTypeMemory KVType = "memory"
	KVTypeRedis  KVType = "redis"
	KVTypeNATS   KVType = "nats"
)

// KVFactory 定义创建 KVStore 的工厂函数类型.
type KVFactory func(ctx context.Context, config any) (KVStore, error)

// kvFactories 存储 KV 类型到工厂的映射.
var kvFactories = make(map[KVType]KVFactory)

// RegisterKVFactory 注册 KV 工厂函数.
func RegisterKVFactory(kvType KVType, factory KVFactory) {
	kvFactories[kvType] = factory
}

// GetRegisteredKVTypes 返回已注册的 KV 类型列表.
func GetRegisteredKVTypes() []KVType {
	types := make([]KVType, 0, len(kvFactories))
	for kvType := range kvFactories {
		types = append(types, kvType)
	}

	return types
}

// NewKVStore 根据类型创建 KVStore 实例.
func NewKVStore(ctx context.Context, kvType KVType, config any) (KVStore, error) {
	factory, exists := kvFactories[kvType]
	if !exists {
		return nil, fmt.Errorf("unsupported KV type: %s", kvType)
	}

	return factory(ctx, config)
}

// NewKVClient 创建并返回一个新的 KVClient 实例. sqlite 类型复用记账库连接.
func NewKVClient(ctx context.Context, gdb *gorm.DB) (*Client, error) {
	cfg := configs.GetConfig().KV

	var conf any

	switch KVType(cfg.Type) {
	case KVTypeSQLite:
		conf = gdb
	case KVTypeRedis:
		conf = &cfg.Redis
	case KVTypeNATS:
		conf = &cfg.NATS
	case KVTypeMemory:
		conf = nil
	}

	store, err := NewKVStore(ctx, KVType(cfg.Type), conf)
	if err != nil {
		return nil, err
	}

	return &Client{KVStore: store}, nil
}

// matchPattern 简单模式匹配：空串匹配全部，尾部 '*' 做前缀匹配，其余精确匹配.
func matchPattern(key, pattern string) bool {
	if pattern == "" {
		return true
	}

	if n := len(pattern); pattern[n-1] == '*' {
		prefix := pattern[:n-1]
		return len(key) >= len(prefix) && key[:len(prefix)] == prefix
	}

	return key == pattern
}
