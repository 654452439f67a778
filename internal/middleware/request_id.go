package middleware

import (
	"incidentdesk/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HTTP 头常量
const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// gin 上下文键
const (
	RequestIDKey = "request_id"
	TraceIDKey   = "trace_id"
)

// RequestIDMiddleware 为每个请求分配请求 ID 与追踪 ID
// 上游已传入的 ID 原样沿用
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			traceID = requestID
		}

		c.Set(RequestIDKey, requestID)
		c.Set(TraceIDKey, traceID)

		ctx := logger.WithRequestID(c.Request.Context(), requestID)
		ctx = logger.WithTraceID(ctx, traceID)
		c.Request = c.Request.WithContext(ctx)

		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderTraceID, traceID)

		c.Next()
	}
}

// GetRequestIDFromGin 从 Gin 上下文获取请求 ID
func GetRequestIDFromGin(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
