package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/agrivault/pkg/internal/service"
	"github.com/yeisme/agrivault/pkg/log"
)

// GetUserStorageInfo 用户存储画像：总占用、档位配额、保留期与未成年标记.
func GetUserStorageInfo(c *gin.Context) {
	user, err := checkUser(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user"})
		return
	}

	svc := service.NewProfileService(c.Request.Context())

	info, err := svc.UserStorageInfo(c.Request.Context(), user)
	if err != nil {
		log.Logger().Error().Err(err).Msg("user storage info failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, info)
}

// ClearUserData 删除该用户的全部本地数据（记账行、文件与 KV 键）.
// 只影响请求头标识的用户自己.
func ClearUserData(c *gin.Context) {
	user, err := checkUser(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user"})
		return
	}

	svc := service.NewProfileService(c.Request.Context())
	if err := svc.ClearUserData(c.Request.Context(), user); err != nil {
		log.Logger().Error().Err(err).Str("user", user).Msg("clear user data failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	c.Status(http.StatusNoContent)
}
