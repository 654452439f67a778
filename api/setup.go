package api

import (
	"fmt"

	_ "incidentdesk/api/docs"
	"incidentdesk/internal/config"
	"incidentdesk/internal/metrics"
	"incidentdesk/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// SetupRouter 初始化容器并返回 Gin 路由
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *AppContainer, error) {
	container, err := InitContainer(db, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化应用容器失败: %w", err)
	}
	return NewRouter(container), container, nil
}

// NewRouter 挂载中间件、系统端点与业务路由
func NewRouter(container *AppContainer) *gin.Engine {
	router := gin.New()

	// 全局中间件
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(RequestLogger())
	router.Use(CORS())

	// Prometheus 指标收集中间件
	router.Use(metrics.PrometheusMiddleware())

	// 公开端点（不需要认证）
	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(container.DB, container.RedisClient))

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger 文档
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	RegisterRoutes(router, container, container.InitHandlers())
	return router
}
