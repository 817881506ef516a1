// Package types 定义配额引擎对外暴露的请求/响应结构.
package types

// DataCategory 本地数据分类标签.
type DataCategory string

const (
	CategoryJournalEntries DataCategory = "journal_entries"
	CategoryAnimals        DataCategory = "animals"
	CategoryWeights        DataCategory = "weights"
	CategoryPhotos         DataCategory = "photos"
	CategoryCache          DataCategory = "cache"
)

// DataCategories 已知分类的固定顺序，统计输出时保持稳定.
var DataCategories = []DataCategory{
	CategoryJournalEntries,
	CategoryAnimals,
	CategoryWeights,
	CategoryPhotos,
	CategoryCache,
}

// IsFileBacked 该分类的数据体是否落在文件区（photos/cache），其余为结构化记录.
func (c DataCategory) IsFileBacked() bool {
	return c == CategoryPhotos || c == CategoryCache
}

// QuotaSet 各分类的字节预算，所有字段必须为正.
type QuotaSet struct {
	TotalLimit int64 `json:"total_limit" rule:"gt=0"`
	PhotoLimit int64 `json:"photo_limit" rule:"gt=0"`
	DataLimit  int64 `json:"data_limit"  rule:"gt=0"`
	CacheLimit int64 `json:"cache_limit" rule:"gt=0"`
}

// QuotaUpdate 部分更新：nil 字段保持原值，非 nil 字段必须为正.
type QuotaUpdate struct {
	TotalLimit *int64 `json:"total_limit,omitempty"`
	PhotoLimit *int64 `json:"photo_limit,omitempty"`
	DataLimit  *int64 `json:"data_limit,omitempty"`
	CacheLimit *int64 `json:"cache_limit,omitempty"`
}

// CategoryLimit 返回分类对应的预算；未单列的分类共用数据预算.
func (q QuotaSet) CategoryLimit(c DataCategory) int64 {
	switch c {
	case CategoryPhotos:
		return q.PhotoLimit
	case CategoryCache:
		return q.CacheLimit
	default:
		return q.DataLimit
	}
}

// PermissionResult 写入许可检查结果. 拒绝属于正常业务结果而不是错误.
type PermissionResult struct {
	CanStore       bool     `json:"can_store"`
	Warnings       []string `json:"warnings,omitempty"`
	SuggestCleanup bool     `json:"suggest_cleanup"`
}
