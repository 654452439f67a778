package common

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ============================================================================
// 通用请求类型
// ============================================================================

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `json:"page" form:"page" binding:"omitempty,min=1"`
	PageSize int `json:"page_size" form:"page_size" binding:"omitempty,min=1"`
}

// DefaultPagination 返回默认分页参数
func DefaultPagination() PaginationRequest {
	return PaginationRequest{Page: 1, PageSize: 20}
}

// GetPage 获取页码，最小为 1
func (p PaginationRequest) GetPage() int {
	if p.Page < 1 {
		return 1
	}
	return p.Page
}

// GetOffset 计算数据库查询的偏移量
func (p PaginationRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// GetPageSize 获取每页数量，默认 20，上限 100
func (p PaginationRequest) GetPageSize() int {
	if p.PageSize < 1 {
		return 20
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// DateRange 日期范围，任一端为零值表示不限
type DateRange struct {
	Start time.Time `json:"start" form:"date_from" time_format:"2006-01-02"`
	End   time.Time `json:"end" form:"date_to" time_format:"2006-01-02"`
}

// IsZero 两端均未设置
func (r *DateRange) IsZero() bool {
	return r == nil || (r.Start.IsZero() && r.End.IsZero())
}

// ============================================================================
// 通用响应类型
// ============================================================================

// APIResponse 统一API响应格式
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// SuccessResponse 成功响应
func SuccessResponse(data any) APIResponse {
	return APIResponse{Success: true, Data: data, Code: CodeSuccess}
}

// SuccessMessageResponse 成功响应（带消息）
func SuccessMessageResponse(message string, data any) APIResponse {
	return APIResponse{Success: true, Data: data, Message: message, Code: CodeSuccess}
}

// ErrorResponse 错误响应
func ErrorResponse(code int, message string) APIResponse {
	return APIResponse{Success: false, Message: message, Code: code}
}

// PaginationMeta 分页元信息
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NewPaginationMeta 创建分页元信息
func NewPaginationMeta(page, pageSize int, total int64) PaginationMeta {
	meta := PaginationMeta{Page: page, PageSize: pageSize, Total: total}
	if pageSize > 0 {
		meta.TotalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return meta
}

// ListResponse 列表响应（包含分页信息）
type ListResponse struct {
	Items      any            `json:"items"`
	Pagination PaginationMeta `json:"pagination"`
}

// NewListResponse 创建列表响应
func NewListResponse(items any, req PaginationRequest, total int64) ListResponse {
	return ListResponse{
		Items:      items,
		Pagination: NewPaginationMeta(req.GetPage(), req.GetPageSize(), total),
	}
}

// ============================================================================
// 业务状态码定义
// ============================================================================

const (
	CodeSuccess = 0

	CodeInvalidRequest     = 1000 // 请求参数错误 / 状态不允许
	CodeUnauthorized       = 1001 // 未授权
	CodeForbidden          = 1002 // 禁止访问
	CodeNotFound           = 1003 // 资源不存在
	CodeConflict           = 1004 // 资源冲突
	CodeInternalError      = 1005 // 内部错误
	CodeServiceUnavailable = 1006 // 服务不可用
)

// ErrorMessages 错误码对应的默认消息
var ErrorMessages = map[int]string{
	CodeSuccess:            "操作成功",
	CodeInvalidRequest:     "请求参数错误",
	CodeUnauthorized:       "未授权，请先登录",
	CodeForbidden:          "无权限访问",
	CodeNotFound:           "资源不存在",
	CodeConflict:           "资源冲突",
	CodeInternalError:      "系统内部错误",
	CodeServiceUnavailable: "服务暂不可用",
}

// GetErrorMessage 获取错误码对应的消息
func GetErrorMessage(code int) string {
	if msg, ok := ErrorMessages[code]; ok {
		return msg
	}
	return "未知错误"
}

// ============================================================================
// 通用业务错误类型
// ============================================================================

// BusinessError 可直接返回给调用方的业务错误
type BusinessError struct {
	Code    int
	Message string
}

func (e *BusinessError) Error() string {
	return e.Message
}

// NewBusinessError 创建业务错误
func NewBusinessError(code int, message string) *BusinessError {
	if message == "" {
		message = GetErrorMessage(code)
	}
	return &BusinessError{Code: code, Message: message}
}

// ErrNotFound 资源不存在
func ErrNotFound(message string) *BusinessError {
	return NewBusinessError(CodeNotFound, message)
}

// ErrInvalid 参数校验失败或状态不允许
func ErrInvalid(message string) *BusinessError {
	return NewBusinessError(CodeInvalidRequest, message)
}

// ErrForbidden 无操作权限
func ErrForbidden(message string) *BusinessError {
	return NewBusinessError(CodeForbidden, message)
}

// ErrConflict 唯一性冲突
func ErrConflict(message string) *BusinessError {
	return NewBusinessError(CodeConflict, message)
}

// AsBusinessError 提取业务错误；唯一约束冲突转换为 409
func AsBusinessError(err error) (*BusinessError, bool) {
	if err == nil {
		return nil, false
	}
	var be *BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict("Duplicate record"), true
	}
	return nil, false
}
