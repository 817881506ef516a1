package service

import (
	"context"
	"fmt"
	"time"

	"github.com/yeisme/agrivault/pkg/internal/model"
	"github.com/yeisme/agrivault/pkg/internal/storage/areas"
	"github.com/yeisme/agrivault/pkg/internal/types"
	logPkg "github.com/yeisme/agrivault/pkg/log"
)

// ProfileService 按用户派生存储画像，并提供整租户数据清除.
type ProfileService struct{ *EngineService }

func NewProfileService(c context.Context) *ProfileService {
	return &ProfileService{NewEngineService(c)}
}

// tier 年龄档位结果. 未成年判定只在 ageTier 一处做，
// 配额分档与保留期都消费它.
type tier struct {
	IsMinor       bool
	TotalQuota    int64
	RetentionDays int
}

// ageTier 按出生日期划档. 出生日期缺失或端口故障按成年处理
// （成年档位更宽松，误判为未成年会错误收紧配额）.
func (s *EngineService) ageTier(ctx context.Context, user string) tier {
	adult := tier{
		IsMinor:       false,
		TotalQuota:    s.loadQuota(ctx).TotalLimit,
		RetentionDays: s.quota.AdultRetentionDays,
	}

	birth, ok, err := s.birthDates.BirthDate(ctx, user)
	if err != nil {
		logPkg.Logger().Warn().Str("user", user).Err(err).Msg("birth date lookup failed, assuming adult tier")
		return adult
	}

	if !ok {
		return adult
	}

	if yearsBetween(birth, s.now()) < s.quota.MinorAgeThreshold {
		return tier{
			IsMinor:       true,
			TotalQuota:    s.quota.MinorTotalLimit,
			RetentionDays: s.quota.MinorRetentionDays,
		}
	}

	return adult
}

// yearsBetween 完整年龄（周岁）.
func yearsBetween(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}

	return years
}

// UserStorageInfo 返回用户的存储画像：总占用、档位配额、保留期与未成年标记.
func (s *ProfileService) UserStorageInfo(ctx context.Context, user string) (types.UserStorageInfo, error) {
	if user == "" {
		return types.UserStorageInfo{}, fmt.Errorf("user required")
	}

	_, sizes := s.categoryTotals(ctx, user)

	var total int64
	for _, size := range sizes {
		total += size
	}

	t := s.ageTier(ctx, user)

	return types.UserStorageInfo{
		User:              user,
		TotalSize:         total,
		TotalQuota:        t.TotalQuota,
		DataRetentionDays: t.RetentionDays,
		IsMinor:           t.IsMinor,
	}, nil
}

// ClearUserData 清除某用户的全部本地足迹：记账行、归档索引、文件区目录
// 与所有带该用户前缀的 KV 键. 只动该用户的数据；用户本就没有足迹时也成功.
func (s *ProfileService) ClearUserData(ctx context.Context, user string) error {
	if user == "" {
		return fmt.Errorf("user required")
	}

	dbx := s.dbClient.GetDB().WithContext(ctx)

	if err := dbx.Delete(&model.Item{}, "user = ?", user).Error; err != nil {
		return fmt.Errorf("clear items: %w", err)
	}

	if err := dbx.Delete(&model.ArchivedItem{}, "user = ?", user).Error; err != nil {
		return fmt.Errorf("clear archive index: %w", err)
	}

	for _, kind := range areas.Kinds {
		if _, err := s.areas.RemovePrefix(ctx, kind, user+"/"); err != nil {
			return fmt.Errorf("clear %s area: %w", kind, err)
		}
	}

	prefixes := []string{
		accessPrefix(user),
		unsyncedKeyPrefix + user + ":",
	}

	for _, prefix := range prefixes {
		keys, err := s.kvClient.Keys(ctx, prefix+"*")
		if err != nil {
			return fmt.Errorf("list user keys: %w", err)
		}

		for _, key := range keys {
			if err := s.kvClient.Delete(ctx, key); err != nil {
				return fmt.Errorf("delete key %s: %w", key, err)
			}
		}
	}

	if err := s.kvClient.Delete(ctx, birthDateKey(user)); err != nil {
		logPkg.Logger().Warn().Str("user", user).Err(err).Msg("birth date key removal failed")
	}

	_ = s.cache.Delete(ctx, "cache:"+birthDateKey(user))

	return nil
}
