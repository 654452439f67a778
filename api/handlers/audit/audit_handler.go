package audit

import (
	response "incidentdesk/api/handlers/common"
	"incidentdesk/internal/audit"
	"incidentdesk/internal/common"

	"github.com/gin-gonic/gin"
)

// AuditHandler 审计日志处理器
type AuditHandler struct {
	recorder *audit.Recorder
}

// NewAuditHandler 创建审计日志处理器
func NewAuditHandler(recorder *audit.Recorder) *AuditHandler {
	return &AuditHandler{recorder: recorder}
}

// ListLogs 查询审计日志
// @Summary 查询审计日志
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Param actor query string false "操作人"
// @Param resource query string false "资源类型"
// @Param resource_id query string false "资源 ID"
// @Param action query string false "动作"
// @Param date_from query string false "开始日期 (2006-01-02)"
// @Param date_to query string false "结束日期 (2006-01-02)"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.APIResponse{data=response.ListResponse}
// @Failure 400 {object} response.ErrorResponse
// @Router /api/audit/logs [get]
func (h *AuditHandler) ListLogs(c *gin.Context) {
	var f audit.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		response.BindError(c, err)
		return
	}
	logs, total, err := h.recorder.List(c.Request.Context(), f)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseList(c, logs, total, f.PaginationRequest)
}
