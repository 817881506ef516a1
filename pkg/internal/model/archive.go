package model

import (
	"time"
)

// ArchivedItem 归档后的条目索引. 原始内容以 zstd 块存放在归档文件区，
// 活跃表中的记录被移除，只保留这里的小索引行.
type ArchivedItem struct {
	ID           string `gorm:"primaryKey;size:64"                json:"id"`
	User         string `gorm:"size:255;index;index:idx_arch_uc"  json:"user"`
	Category     string `gorm:"size:64;index:idx_arch_uc"         json:"category"`
	OriginalSize int64  `json:"original_size"`
	// 归档块在归档区的文件名（ULID）
	BlobKey    string `gorm:"size:64;index" json:"blob_key"`
	ArchivedAt time.Time
}

// TableName ArchivedItems.
func (ArchivedItem) TableName() string { return "archived_items" }
