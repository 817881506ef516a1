package types

// CleanupResult 一次清理运行的结果，每次调用即时计算，不做缓存.
type CleanupResult struct {
	Success    bool   `json:"success"`
	BytesFreed int64  `json:"bytes_freed"`
	Message    string `json:"message"`
}

// RecommendationType 清理建议的类型.
type RecommendationType string

const (
	RecommendCache   RecommendationType = "cache"
	RecommendPhotos  RecommendationType = "photos"
	RecommendArchive RecommendationType = "archive"
)

// RecommendationImpact 建议的预期收益档位.
type RecommendationImpact string

const (
	ImpactLow    RecommendationImpact = "low"
	ImpactMedium RecommendationImpact = "medium"
	ImpactHigh   RecommendationImpact = "high"
)

// CleanupRecommendation 主动清理建议，只读输出.
type CleanupRecommendation struct {
	Type        RecommendationType   `json:"type"`
	Impact      RecommendationImpact `json:"impact"`
	Description string               `json:"description"`
}
