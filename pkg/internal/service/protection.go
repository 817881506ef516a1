package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yeisme/agrivault/pkg/internal/types"
	logPkg "github.com/yeisme/agrivault/pkg/log"
)

// ProtectionService 推导不可清理的条目集合：未同步的数据 ∪ 保护窗口内被访问过的数据.
// 集合每次现算，不持久化.
type ProtectionService struct{ *EngineService }

func NewProtectionService(c context.Context) *ProtectionService {
	return &ProtectionService{NewEngineService(c)}
}

// ProtectedDataIDs 返回受保护的条目 id 集合. user 为空表示整机（所有用户）.
//
// 未同步清单读不到时返回错误而不是空集：宁可跳过一轮清理，
// 也不能冒险删掉还没同步出去的数据. 访问记录的读故障只收窄保护面，
// 单独记日志后继续.
func (s *ProtectionService) ProtectedDataIDs(ctx context.Context, user string) (map[string]struct{}, error) {
	protected := make(map[string]struct{})

	users := []string{user}
	if user == "" {
		var err error
		if users, err = s.knownUsers(ctx); err != nil {
			return nil, err
		}
	}

	for _, u := range users {
		for _, cat := range types.DataCategories {
			ids, err := s.syncState.UnsyncedIDs(ctx, u, cat)
			if err != nil {
				return nil, fmt.Errorf("unsynced ids for %s/%s: %w", u, cat, err)
			}

			for _, id := range ids {
				protected[id] = struct{}{}
			}
		}
	}

	cutoff := s.now().AddDate(0, 0, -s.quota.ProtectionWindowDays).Unix()

	keys, err := s.kvClient.Keys(ctx, accessPrefix(user)+"*")
	if err != nil {
		logPkg.Logger().Warn().Err(err).Msg("access records unavailable, protection covers unsynced only")
		return protected, nil
	}

	for _, key := range keys {
		ts, ok := s.readAccess(ctx, key)
		if !ok || ts < cutoff {
			continue
		}

		// access:<user>:<category>:<id>；id 为 ULID/UUID，不含冒号
		if idx := strings.LastIndexByte(key, ':'); idx >= 0 && idx+1 < len(key) {
			protected[key[idx+1:]] = struct{}{}
		}
	}

	return protected, nil
}

// RecentlyAccessed 判断单个条目是否落在保护窗口内.
func (s *ProtectionService) RecentlyAccessed(ctx context.Context, user string, category types.DataCategory, id string, window time.Duration) bool {
	ts, ok := s.readAccess(ctx, accessKey(user, category, id))
	if !ok {
		return false
	}

	return time.Unix(ts, 0).After(s.now().Add(-window))
}
