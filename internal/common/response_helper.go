package common

import (
	"net/http"

	"incidentdesk/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ResponseSuccess 返回成功响应
func ResponseSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, SuccessResponse(data))
}

// ResponseSuccessMessage 返回成功响应（带消息）
func ResponseSuccessMessage(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, SuccessMessageResponse(message, data))
}

// ResponseCreated 返回创建成功响应（201）
func ResponseCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, SuccessResponse(data))
}

// ResponseList 返回分页列表响应
func ResponseList(c *gin.Context, items any, total int64, req PaginationRequest) {
	c.JSON(http.StatusOK, SuccessResponse(NewListResponse(items, req, total)))
}

// HTTPStatus 业务状态码映射到 HTTP 状态码
func HTTPStatus(code int) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ResponseError 返回错误响应
func ResponseError(c *gin.Context, code int, message string) {
	c.JSON(HTTPStatus(code), ErrorResponse(code, message))
}

// ResponseBadRequest 返回参数错误响应
func ResponseBadRequest(c *gin.Context, message string) {
	ResponseError(c, CodeInvalidRequest, message)
}

// ResponseUnauthorized 返回未认证响应
func ResponseUnauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "未认证，请先登录"
	}
	ResponseError(c, CodeUnauthorized, message)
}

// AbortWithError 中断并返回错误
func AbortWithError(c *gin.Context, code int, message string) {
	ResponseError(c, code, message)
	c.Abort()
}

// RespondError 业务错误原样返回，其余错误记录日志后返回 500
func RespondError(c *gin.Context, err error) {
	if be, ok := AsBusinessError(err); ok {
		ResponseError(c, be.Code, be.Message)
		return
	}
	logger.WithContext(c.Request.Context()).Error("请求处理失败",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	ResponseError(c, CodeInternalError, GetErrorMessage(CodeInternalError))
}
