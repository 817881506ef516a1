// Package model 定义数据库模型. Items 表是每个本地条目大小的唯一权威来源，
// 文件区枚举只用于对账，避免双重记账漂移.
package model

import (
	"time"
)

// Item 本地条目的规范尺寸记录.
//
// photos/cache 分类的数据体落在文件区，文件名即条目 ID；其余分类的内容
// 由上层应用自行存放，这里只记账.
type Item struct {
	ID       string `gorm:"primaryKey;size:64"                          json:"id"`
	User     string `gorm:"size:255;index;index:idx_user_cat"           json:"user"`
	Category string `gorm:"size:64;index;index:idx_user_cat"            json:"category"`
	// 条目占用字节数；照片压缩后更新为压缩后大小
	SizeBytes int64 `gorm:"index" json:"size_bytes"`
	// 照片是否已做过一次性有损压缩（幂等标记）
	Compressed bool `json:"compressed"`
	// 压缩后内容的 xxhash 指纹，标记丢失时用于兜底判重
	Fingerprint uint64 `json:"fingerprint"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName Items.
func (Item) TableName() string { return "items" }
