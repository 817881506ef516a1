package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/agrivault/pkg/internal/service"
	"github.com/yeisme/agrivault/pkg/internal/types"
	"github.com/yeisme/agrivault/pkg/log"
)

// GetStorageStats 当前占用汇总：各分类用量、总占比与提醒/清理标记.
func GetStorageStats(c *gin.Context) {
	user, err := checkUser(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user"})
		return
	}

	svc := service.NewStatsService(c.Request.Context())
	c.JSON(http.StatusOK, svc.StorageStats(c.Request.Context(), user))
}

// GetStorageQuotas 当前生效的配额.
func GetStorageQuotas(c *gin.Context) {
	svc := service.NewQuotaService(c.Request.Context())
	c.JSON(http.StatusOK, svc.QuotaSnapshot(c.Request.Context()))
}

// PatchStorageQuotas 部分更新配额；缺省字段保持原值，非正值整体拒绝.
func PatchStorageQuotas(c *gin.Context) {
	var update types.QuotaUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc := service.NewQuotaService(c.Request.Context())

	merged, err := svc.SetStorageQuotas(c.Request.Context(), update)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, merged)
}

type permissionRequest struct {
	Category types.DataCategory `json:"category" binding:"required"`
	Size     int64              `json:"size"     binding:"required"`
}

// CheckStorePermission 写入准入检查. 拒绝通过结果字段表达，HTTP 层始终 200.
func CheckStorePermission(c *gin.Context) {
	user, err := checkUser(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user"})
		return
	}

	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc := service.NewGateService(c.Request.Context())

	result, err := svc.CanStoreData(c.Request.Context(), user, req.Category, req.Size)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

type cleanupRequest struct {
	Force bool `json:"force"`
}

// RunCleanup 触发一轮智能清理，返回释放字节数与说明.
func RunCleanup(c *gin.Context) {
	user, err := checkUser(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user"})
		return
	}

	var req cleanupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	svc := service.NewCleanupService(c.Request.Context())
	result := svc.PerformSmartCleanup(c.Request.Context(), user, req.Force)

	c.JSON(http.StatusOK, result)
}

// GetCleanupRecommendations 主动清理建议，各分类健康时返回空数组.
func GetCleanupRecommendations(c *gin.Context) {
	user, err := checkUser(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user"})
		return
	}

	svc := service.NewAdvisorService(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"recommendations": svc.CleanupRecommendations(c.Request.Context(), user)})
}

type accessRequest struct {
	Category types.DataCategory `json:"category" binding:"required"`
	ID       string             `json:"id"       binding:"required"`
}

// TrackAccess 记录一次条目访问（读写路径都应上报）.
func TrackAccess(c *gin.Context) {
	user, err := checkUser(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user"})
		return
	}

	var req accessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc := service.NewAccessService(c.Request.Context())
	if err := svc.TrackDataAccess(c.Request.Context(), user, req.Category, req.ID); err != nil {
		log.Logger().Error().Err(err).Msg("track access failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	c.Status(http.StatusNoContent)
}

type recordItemRequest struct {
	Category types.DataCategory `json:"category" binding:"required"`
	ID       string             `json:"id"       binding:"required"`
	Size     int64              `json:"size"`
	Content  []byte             `json:"content,omitempty"`
}

// RecordItem 登记一次实际写入：photos/cache 可携带内容，其余分类只报尺寸.
func RecordItem(c *gin.Context) {
	user, err := checkUser(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user"})
		return
	}

	var req recordItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc := service.NewItemsService(c.Request.Context())
	if err := svc.RecordItem(c.Request.Context(), user, req.Category, req.ID, req.Size, req.Content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

// RemoveItem 注销一个条目.
func RemoveItem(c *gin.Context) {
	user, err := checkUser(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user"})
		return
	}

	category := types.DataCategory(c.Param("category"))
	id := c.Param("id")

	svc := service.NewItemsService(c.Request.Context())
	if err := svc.RemoveItem(c.Request.Context(), user, category, id); err != nil {
		log.Logger().Error().Err(err).Msg("remove item failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	c.Status(http.StatusNoContent)
}
