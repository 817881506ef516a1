package service

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/yeisme/agrivault/pkg/internal/model"
	"github.com/yeisme/agrivault/pkg/internal/storage/areas"
	"github.com/yeisme/agrivault/pkg/internal/types"
	logPkg "github.com/yeisme/agrivault/pkg/log"
)

// ItemsService 应用写路径的落账入口：把一次实际写入登记成权威尺寸记录.
// 调用方应先通过 GateService 做准入检查.
type ItemsService struct{ *EngineService }

func NewItemsService(c context.Context) *ItemsService { return &ItemsService{NewEngineService(c)} }

// RecordItem 登记（或更新）一个条目.
//
// photos/cache 分类可附带内容字节，内容写入对应文件区且尺寸以内容为准；
// 其余分类的内容由上层自存，这里只记 size. 同键重复登记按更新处理，
// 登记同时推进访问时间.
func (s *ItemsService) RecordItem(ctx context.Context, user string, category types.DataCategory, id string, size int64, data []byte) error {
	if user == "" || id == "" {
		return fmt.Errorf("user and id required")
	}

	if category.IsFileBacked() && data != nil {
		kind := areas.KindCache
		if category == types.CategoryPhotos {
			kind = areas.KindPhotos
		}

		if err := s.areas.WriteFile(kind, areaEntryName(user, id), data); err != nil {
			return fmt.Errorf("write %s entry: %w", category, err)
		}

		size = int64(len(data))
	}

	if size <= 0 {
		return fmt.Errorf("item size must be positive")
	}

	row := model.Item{
		ID:       id,
		User:     user,
		Category: string(category),
		// 内容变化视为新内容：压缩标记与指纹一并重置
		SizeBytes:   size,
		Compressed:  false,
		Fingerprint: 0,
	}

	err := s.dbClient.GetDB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"size_bytes", "compressed", "fingerprint", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("record item: %w", err)
	}

	if err := (&AccessService{s.EngineService}).TrackDataAccess(ctx, user, category, id); err != nil {
		logPkg.Logger().Warn().Str("id", id).Err(err).Msg("access tracking on record failed")
	}

	return nil
}

// RemoveItem 注销一个条目：删记账行、文件与访问记录. 条目不存在不算错误.
func (s *ItemsService) RemoveItem(ctx context.Context, user string, category types.DataCategory, id string) error {
	if user == "" || id == "" {
		return fmt.Errorf("user and id required")
	}

	item := model.Item{ID: id, User: user, Category: string(category)}

	return s.dropItem(ctx, item)
}
