package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/yeisme/agrivault/pkg/internal/storage/kv"
	"github.com/yeisme/agrivault/pkg/internal/types"
	logPkg "github.com/yeisme/agrivault/pkg/log"
)

// AccessService 记录条目的最近访问时间，键为 (user, category, id).
// 外部读写路径在每次使用条目时调用 TrackDataAccess.
type AccessService struct{ *EngineService }

func NewAccessService(c context.Context) *AccessService { return &AccessService{NewEngineService(c)} }

// TrackDataAccess 把键的最近访问时间推进到 now. 单调：已有更新的时间戳时不回退.
func (s *AccessService) TrackDataAccess(ctx context.Context, user string, category types.DataCategory, id string) error {
	if user == "" || id == "" {
		return fmt.Errorf("user and id required")
	}

	key := accessKey(user, category, id)
	now := s.now().Unix()

	if prev, ok := s.readAccess(ctx, key); ok && prev >= now {
		return nil
	}

	if err := s.kvClient.Set(ctx, key, []byte(strconv.FormatInt(now, 10)), 0); err != nil {
		return fmt.Errorf("track access: %w", err)
	}

	return nil
}

// LastAccessedAt 查键的最近访问时间；从未记录返回 ok=false. 读故障按未记录处理.
func (s *AccessService) LastAccessedAt(ctx context.Context, user string, category types.DataCategory, id string) (time.Time, bool) {
	ts, ok := s.readAccess(ctx, accessKey(user, category, id))
	if !ok {
		return time.Time{}, false
	}

	return time.Unix(ts, 0), true
}

// PruneOlderThan 删掉 cutoff 之前的访问记录，返回删除条数. 维护任务用.
func (s *AccessService) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	keys, err := s.kvClient.Keys(ctx, accessKeyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("list access records: %w", err)
	}

	pruned := 0

	for _, key := range keys {
		ts, ok := s.readAccess(ctx, key)
		if !ok || !time.Unix(ts, 0).Before(cutoff) {
			continue
		}

		if err := s.kvClient.Delete(ctx, key); err != nil {
			logPkg.Logger().Warn().Str("key", key).Err(err).Msg("prune access record failed")
			continue
		}

		pruned++
	}

	return pruned, nil
}

// readAccess 读访问时间戳. 未命中、损坏或读故障都按未记录处理.
func (s *EngineService) readAccess(ctx context.Context, key string) (int64, bool) {
	data, err := s.kvClient.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			logPkg.Logger().Warn().Str("key", key).Err(err).Msg("access record unreadable")
		}

		return 0, false
	}

	ts, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		logPkg.Logger().Warn().Str("key", key).Msg("access record corrupt")
		return 0, false
	}

	return ts, true
}
