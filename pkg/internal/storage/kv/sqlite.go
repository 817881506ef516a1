package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// kvEntry 是 sqlite KV 的行模型，与记账表共用同一个库文件.
type kvEntry struct {
	K        string `gorm:"primaryKey;size:512"`
	V        []byte
	ExpireAt int64 `gorm:"index"` // unix 秒，0 表示不过期
}

func (kvEntry) TableName() string { return "kv_entries" }

// SQLiteKV 基于记账库的持久 KV 实现，设备端默认选择.
type SQLiteKV struct {
	db *gorm.DB
}

// NewSQLiteKV 创建 sqlite KV 实例，config 为已打开的 *gorm.DB.
func NewSQLiteKV(ctx context.Context, config any) (KVStore, error) {
	gdb, ok := config.(*gorm.DB)
	if !ok || gdb == nil {
		return nil, fmt.Errorf("invalid sqlite kv config: want *gorm.DB")
	}

	if err := gdb.WithContext(ctx).AutoMigrate(&kvEntry{}); err != nil {
		return nil, fmt.Errorf("migrate kv_entries: %w", err)
	}

	return &SQLiteKV{db: gdb}, nil
}

// Get 获取键的值，过期键惰性删除.
func (s *SQLiteKV) Get(ctx context.Context, key string) ([]byte, error) {
	var row kvEntry
	if err := s.db.WithContext(ctx).First(&row, "k = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}

		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	if row.ExpireAt > 0 && time.Now().Unix() >= row.ExpireAt {
		_ = s.db.WithContext(ctx).Delete(&kvEntry{}, "k = ?", key).Error
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	return row.V, nil
}

// Set 设置键的值（upsert）.
func (s *SQLiteKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	row := kvEntry{K: key, V: value}
	if ttl > 0 {
		row.ExpireAt = time.Now().Add(ttl).Unix()
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "k"}},
			DoUpdates: clause.AssignmentColumns([]string{"v", "expire_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}

	return nil
}

// Delete 删除键.
func (s *SQLiteKV) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&kvEntry{}, "k = ?", key).Error; err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	return nil
}

// Exists 检查键是否存在.
func (s *SQLiteKV) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := s.Get(ctx, key); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

// Keys 获取匹配模式的键.
func (s *SQLiteKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	q := s.db.WithContext(ctx).Model(&kvEntry{}).
		Where("expire_at = 0 OR expire_at > ?", time.Now().Unix())

	switch {
	case pattern == "":
		// 全部
	case strings.HasSuffix(pattern, "*"):
		prefix := strings.TrimSuffix(pattern, "*")
		q = q.Where("k LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%")
	default:
		q = q.Where("k = ?", pattern)
	}

	var keys []string
	if err := q.Pluck("k", &keys).Error; err != nil {
		return nil, fmt.Errorf("failed to get keys: %w", err)
	}

	return keys, nil
}

// escapeLike 转义 LIKE 通配符，键里允许出现 '_'（用户 ID 等）.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)

	return s
}

// Close 关闭存储（库连接由 storage.Manager 管理）.
func (s *SQLiteKV) Close() error {
	return nil
}

func init() {
	RegisterKVFactory(KVTypeSQLite, NewSQLiteKV)
}
