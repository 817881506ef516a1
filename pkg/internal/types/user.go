package types

// UserStorageInfo 按用户派生的存储画像.
//
// 未成年（年龄低于法定阈值）用户拿到更小的总预算与更短的数据保留期.
type UserStorageInfo struct {
	User              string `json:"user"`
	TotalSize         int64  `json:"total_size"`
	TotalQuota        int64  `json:"total_quota"`
	DataRetentionDays int    `json:"data_retention_days"`
	IsMinor           bool   `json:"is_minor"`
}
