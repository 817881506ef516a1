package types

// CategoryUsage 单个分类的占用情况.
type CategoryUsage struct {
	Category DataCategory `json:"category"`
	Count    int          `json:"count"`
	Size     int64        `json:"size"`
	Limit    int64        `json:"limit"`
}

// StorageStats 当前本地存储占用汇总.
//
// UsagePercentage 取整并夹在 [0,100]；NeedsCleanup 与 ShowWarning 分别对应
// 清理触发带（>=90）与提醒带（[80,90)）.
type StorageStats struct {
	TotalUsed       int64           `json:"total_used"`
	TotalQuota      int64           `json:"total_quota"`
	UsagePercentage int             `json:"usage_percentage"`
	NeedsCleanup    bool            `json:"needs_cleanup"`
	ShowWarning     bool            `json:"show_warning"`
	Categories      []CategoryUsage `json:"categories"`
}
