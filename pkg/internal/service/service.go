// Package service 实现本地存储配额与清理引擎.
//
// 引擎由若干子服务组成：配额配置、用量统计、访问追踪、保护策略、写入许可、
// 分级清理、清理建议与用户画像. 所有子服务共享同一个基础服务，从 context
// 携带的 storage.Manager 取得数据库、KV 与文件区句柄. 设备上的记账库
// （items 表）是每个条目大小的唯一权威来源.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/yeisme/agrivault/pkg/cache"
	"github.com/yeisme/agrivault/pkg/configs"
	ctxPkg "github.com/yeisme/agrivault/pkg/context"
	"github.com/yeisme/agrivault/pkg/internal/storage/areas"
	"github.com/yeisme/agrivault/pkg/internal/storage/db"
	"github.com/yeisme/agrivault/pkg/internal/storage/kv"
	"github.com/yeisme/agrivault/pkg/internal/types"
	logPkg "github.com/yeisme/agrivault/pkg/log"
)

// KV 命名空间. 扁平键空间由各前缀划分，ClearUserData 依赖这些前缀的稳定性.
const (
	quotaConfigKey = "quota:config"       // 持久化的 QuotaSet（JSON）
	lastCleanupKey = "quota:last_cleanup" // 最近一次实际清理的时间（RFC3339）

	accessKeyPrefix   = "access:"            // access:<user>:<category>:<id> → unix 秒
	unsyncedKeyPrefix = "sync:unsynced:"     // sync:unsynced:<user>:<category> → JSON id 数组
	birthDateKeyFmt   = "profile:birthdate:" // profile:birthdate:<user> → 日期字符串

	freeBytesCacheKey = "probe:free_bytes"
	freeBytesCacheTTL = 30 * time.Second
	birthDateCacheTTL = time.Hour
)

// SyncStateProvider 同步层端口：报告某用户某分类下尚未同步的条目 id.
// 未同步的数据在任何清理阶段都不可触碰.
type SyncStateProvider interface {
	UnsyncedIDs(ctx context.Context, user string, category types.DataCategory) ([]string, error)
}

// CapacityProbe 设备容量端口：估算设备剩余可用字节数.
type CapacityProbe interface {
	FreeBytes(ctx context.Context) (int64, error)
}

// BirthDateProvider 身份端口：返回用户的出生日期，未登记时 ok 为 false.
type BirthDateProvider interface {
	BirthDate(ctx context.Context, user string) (birth time.Time, ok bool, err error)
}

// EngineService 配额引擎的基础服务，子服务通过嵌入复用它.
type EngineService struct {
	dbClient *db.Client
	kvClient *kv.Client
	areas    *areas.Manager
	cache    *cache.Cache

	quota *configs.QuotaConfig

	syncState  SyncStateProvider
	probe      CapacityProbe
	birthDates BirthDateProvider

	now func() time.Time
}

// NewEngineService 从 context 携带的存储管理器组装基础服务.
// 三个外部端口默认使用 KV/文件区实现，可通过 WithXxx 替换.
func NewEngineService(c context.Context) *EngineService {
	dbc := ctxPkg.GetDBClient(c)
	kvc := ctxPkg.GetKVClient(c)
	ar := ctxPkg.GetAreas(c)
	cc := cache.NewCache(kvc)

	s := &EngineService{
		dbClient: dbc,
		kvClient: kvc,
		areas:    ar,
		cache:    cc,
		quota:    &configs.GetConfig().Quota,
		now:      time.Now,
	}
	s.syncState = &kvSyncState{kv: kvc}
	s.probe = &areaProbe{areas: ar, cache: cc}
	s.birthDates = &kvBirthDates{kv: kvc, cache: cc}

	return s
}

// WithSyncProvider 替换同步层端口.
func (s *EngineService) WithSyncProvider(p SyncStateProvider) *EngineService {
	s.syncState = p
	return s
}

// WithCapacityProbe 替换设备容量端口.
func (s *EngineService) WithCapacityProbe(p CapacityProbe) *EngineService {
	s.probe = p
	return s
}

// WithBirthDates 替换出生日期端口.
func (s *EngineService) WithBirthDates(p BirthDateProvider) *EngineService {
	s.birthDates = p
	return s
}

// WithClock 替换时钟，测试用.
func (s *EngineService) WithClock(now func() time.Time) *EngineService {
	s.now = now
	return s
}

func accessKey(user string, category types.DataCategory, id string) string {
	return accessKeyPrefix + user + ":" + string(category) + ":" + id
}

func accessPrefix(user string) string {
	if user == "" {
		return accessKeyPrefix
	}

	return accessKeyPrefix + user + ":"
}

func unsyncedKey(user string, category types.DataCategory) string {
	return unsyncedKeyPrefix + user + ":" + string(category)
}

func birthDateKey(user string) string {
	return birthDateKeyFmt + user
}

// areaEntryName 文件区内的条目名，按用户分目录，便于整租户删除.
func areaEntryName(user, id string) string {
	return user + "/" + id
}

// kvSyncState 默认同步层端口：同步层把未同步清单写进 KV，这里只读.
type kvSyncState struct {
	kv *kv.Client
}

func (p *kvSyncState) UnsyncedIDs(ctx context.Context, user string, category types.DataCategory) ([]string, error) {
	data, err := p.kv.Get(ctx, unsyncedKey(user, category))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read unsynced list: %w", err)
	}

	var ids []string
	if err := sonic.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode unsynced list: %w", err)
	}

	return ids, nil
}

// areaProbe 默认容量端口：文件区所在文件系统的剩余空间，短 TTL 缓存避免频繁 statfs.
type areaProbe struct {
	areas *areas.Manager
	cache *cache.Cache
}

func (p *areaProbe) FreeBytes(ctx context.Context) (int64, error) {
	return cache.GetOrSet(ctx, p.cache, freeBytesCacheKey, func() (int64, error) {
		return p.areas.FreeBytes()
	}, freeBytesCacheTTL)
}

// kvBirthDates 默认身份端口：身份层把出生日期写进 KV，读取经缓存.
type kvBirthDates struct {
	kv    *kv.Client
	cache *cache.Cache
}

func (p *kvBirthDates) BirthDate(ctx context.Context, user string) (time.Time, bool, error) {
	raw, err := cache.GetOrSet(ctx, p.cache, "cache:"+birthDateKey(user), func() (string, error) {
		data, err := p.kv.Get(ctx, birthDateKey(user))
		if errors.Is(err, kv.ErrKeyNotFound) {
			return "", nil
		}

		if err != nil {
			return "", err
		}

		return string(data), nil
	}, birthDateCacheTTL)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read birth date: %w", err)
	}

	if raw == "" {
		return time.Time{}, false, nil
	}

	birth, err := parseBirthDate(raw)
	if err != nil {
		logPkg.Logger().Warn().Str("user", user).Err(err).Msg("invalid birth date in store")
		return time.Time{}, false, nil
	}

	return birth, true, nil
}

func parseBirthDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}

	return time.Parse("2006-01-02", raw)
}
