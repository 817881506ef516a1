package configs

import (
	"github.com/spf13/viper"
)

const (
	mb = 1 << 20

	DefaultTotalLimit = 100 * mb // 首次运行写入的总预算
	DefaultPhotoLimit = 50 * mb  // 照片预算
	DefaultDataLimit  = 30 * mb  // 结构化记录预算
	DefaultCacheLimit = 20 * mb  // 缓存预算

	DefaultCleanupTriggerPercent = 90 // 触发清理的占用百分比
	DefaultWarningPercent        = 80 // 提醒带下沿
	DefaultCleanupTargetPercent  = 70 // 清理的滞回目标，低于触发阈值防止立刻复燃

	DefaultProtectionWindowDays = 30 // 最近访问保护窗口
	DefaultPhotoCompressAgeDays = 30 // 照片压缩的最小年龄
	DefaultArchiveAgeDays       = 90 // 归档的最小年龄

	DefaultMinorAgeThreshold = 13       // 法定未成年阈值（岁）
	DefaultMinorTotalLimit   = 25 * mb  // 未成年总预算
	DefaultMinorRetention    = 30       // 未成年数据保留期（天）
	DefaultAdultRetention    = 365      // 成年数据保留期（天）
	DefaultDeviceReserve     = 0        // 设备剩余空间的额外保留量，0 表示仅要求不写满
	DefaultCacheRecFloor     = 5 * mb   // 缓存清理建议的绝对下限
	DefaultArchiveRecFloor   = 10 * mb  // 归档建议的聚合下限
	DefaultPhotoRecPercent   = 70       // 照片建议阈值（照片配额占比）
)

// QuotaConfig 配额与清理策略配置. 滞回目标与保护窗口是可覆盖的命名常量，
// 不作为合同性的字面值.
type QuotaConfig struct {
	DefaultTotalLimit int64 `mapstructure:"default_total_limit" rule:"gt=0"`
	DefaultPhotoLimit int64 `mapstructure:"default_photo_limit" rule:"gt=0"`
	DefaultDataLimit  int64 `mapstructure:"default_data_limit"  rule:"gt=0"`
	DefaultCacheLimit int64 `mapstructure:"default_cache_limit" rule:"gt=0"`

	CleanupTriggerPercent int `mapstructure:"cleanup_trigger_percent" rule:"min=1,max=100"`
	WarningPercent        int `mapstructure:"warning_percent"         rule:"min=1,max=100"`
	CleanupTargetPercent  int `mapstructure:"cleanup_target_percent"  rule:"min=1,max=100"`

	ProtectionWindowDays int `mapstructure:"protection_window_days"  rule:"min=1"`
	PhotoCompressAgeDays int `mapstructure:"photo_compress_age_days" rule:"min=1"`
	ArchiveAgeDays       int `mapstructure:"archive_age_days"        rule:"min=1"`

	MinorAgeThreshold  int   `mapstructure:"minor_age_threshold"  rule:"min=1"`
	MinorTotalLimit    int64 `mapstructure:"minor_total_limit"    rule:"gt=0"`
	MinorRetentionDays int   `mapstructure:"minor_retention_days" rule:"min=1"`
	AdultRetentionDays int   `mapstructure:"adult_retention_days" rule:"min=1"`

	DeviceReserveBytes int64 `mapstructure:"device_reserve_bytes" rule:"min=0"`

	CacheRecommendFloor   int64 `mapstructure:"cache_recommend_floor"   rule:"gt=0"`
	ArchiveRecommendFloor int64 `mapstructure:"archive_recommend_floor" rule:"gt=0"`
	PhotoRecommendPercent int   `mapstructure:"photo_recommend_percent" rule:"min=1,max=100"`
}

// setDefaults 设置配额策略的默认值.
func (c *QuotaConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("quota.default_total_limit", DefaultTotalLimit)
	v.SetDefault("quota.default_photo_limit", DefaultPhotoLimit)
	v.SetDefault("quota.default_data_limit", DefaultDataLimit)
	v.SetDefault("quota.default_cache_limit", DefaultCacheLimit)

	v.SetDefault("quota.cleanup_trigger_percent", DefaultCleanupTriggerPercent)
	v.SetDefault("quota.warning_percent", DefaultWarningPercent)
	v.SetDefault("quota.cleanup_target_percent", DefaultCleanupTargetPercent)

	v.SetDefault("quota.protection_window_days", DefaultProtectionWindowDays)
	v.SetDefault("quota.photo_compress_age_days", DefaultPhotoCompressAgeDays)
	v.SetDefault("quota.archive_age_days", DefaultArchiveAgeDays)

	v.SetDefault("quota.minor_age_threshold", DefaultMinorAgeThreshold)
	v.SetDefault("quota.minor_total_limit", DefaultMinorTotalLimit)
	v.SetDefault("quota.minor_retention_days", DefaultMinorRetention)
	v.SetDefault("quota.adult_retention_days", DefaultAdultRetention)

	v.SetDefault("quota.device_reserve_bytes", DefaultDeviceReserve)

	v.SetDefault("quota.cache_recommend_floor", DefaultCacheRecFloor)
	v.SetDefault("quota.archive_recommend_floor", DefaultArchiveRecFloor)
	v.SetDefault("quota.photo_recommend_percent", DefaultPhotoRecPercent)
}
