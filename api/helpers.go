package api

import (
	"net/http"
	"os"
	"strings"

	"incidentdesk/internal/infra"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ReadinessResponse 就绪检查响应
type ReadinessResponse struct {
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Database string `json:"database,omitempty"`
	Redis    string `json:"redis,omitempty"`
}

// HealthCheck 健康检查
// @Summary 服务健康检查
// @Description 返回基础健康状态，可供监控探针使用
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func HealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Service: "incidentdesk"})
	}
}

// ReadinessCheck 就绪检查
// @Summary 服务就绪检查
// @Description 数据库不可用时返回 503；Redis 未配置或不可用只标记为 degraded
// @Tags System
// @Produce json
// @Success 200 {object} ReadinessResponse
// @Failure 503 {object} ReadinessResponse
// @Router /ready [get]
func ReadinessCheck(db *gorm.DB, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := infra.PingDatabase(db); err != nil {
			c.JSON(http.StatusServiceUnavailable, ReadinessResponse{
				Status: "not_ready",
				Reason: "database ping failed",
			})
			return
		}

		resp := ReadinessResponse{Status: "ready", Database: "connected", Redis: "disabled"}
		if rdb != nil {
			if err := infra.PingRedis(c.Request.Context(), rdb); err != nil {
				resp.Redis = "degraded"
			} else {
				resp.Redis = "connected"
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

// --- 环境变量辅助函数 ---

func getEnvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func stringInSlice(target string, list []string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}

func defaultIfEmpty(list []string, def []string) []string {
	if len(list) == 0 {
		return def
	}
	return list
}
