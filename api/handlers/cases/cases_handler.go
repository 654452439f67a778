package cases

import (
	response "incidentdesk/api/handlers/common"
	"incidentdesk/internal/auth"
	"incidentdesk/internal/cases"
	"incidentdesk/internal/common"

	"github.com/gin-gonic/gin"
)

// CasesHandler 事件报告、调查与事故案件
type CasesHandler struct {
	service *cases.Service
}

// NewCasesHandler 创建案件处理器
func NewCasesHandler(service *cases.Service) *CasesHandler {
	return &CasesHandler{service: service}
}

// ============================================================================
// 事件报告
// ============================================================================

// CreateReport 创建事件报告
// @Summary 创建事件报告
// @Description 按站点编码分配 NC-{站点}-{YYMM}-{序号} 单号，并按金额计算优先级
// @Tags Cases
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body cases.CaseReportInput true "报告内容"
// @Success 201 {object} response.APIResponse{data=cases.CaseReport}
// @Failure 400 {object} response.ErrorResponse
// @Router /api/cases/reports [post]
func (h *CasesHandler) CreateReport(c *gin.Context) {
	var req cases.CaseReportInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	report, err := h.service.CreateReport(c.Request.Context(), &req, auth.Actor(c.Request.Context()))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseCreated(c, report)
}

// ListReports 事件报告列表
// @Summary 事件报告列表
// @Tags Cases
// @Security BearerAuth
// @Produce json
// @Param site_id query int false "站点"
// @Param department_id query int false "部门"
// @Param driver_id query int false "司机"
// @Param casestatus query string false "案件状态"
// @Param priority query string false "优先级"
// @Param date_from query string false "开始日期 YYYY-MM-DD"
// @Param date_to query string false "结束日期 YYYY-MM-DD"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.APIResponse{data=response.ListResponse}
// @Router /api/cases/reports [get]
func (h *CasesHandler) ListReports(c *gin.Context) {
	var f cases.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		response.BindError(c, err)
		return
	}
	items, total, err := h.service.ListReports(c.Request.Context(), f)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseList(c, items, total, f.PaginationRequest)
}

// GetReport 事件报告详情
// @Summary 事件报告详情
// @Tags Cases
// @Security BearerAuth
// @Produce json
// @Param document_no path string true "单号"
// @Success 200 {object} response.APIResponse{data=cases.CaseReport}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/cases/reports/{document_no} [get]
func (h *CasesHandler) GetReport(c *gin.Context) {
	report, err := h.service.GetReport(c.Request.Context(), c.Param("document_no"))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, report)
}

// UpdateReport 修改事件报告
// @Summary 修改事件报告
// @Description 站点不可修改；未提供的字段保持不变
// @Tags Cases
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param document_no path string true "单号"
// @Param request body cases.CaseReportInput true "修改内容"
// @Success 200 {object} response.APIResponse{data=cases.CaseReport}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/cases/reports/{document_no} [put]
func (h *CasesHandler) UpdateReport(c *gin.Context) {
	var req cases.CaseReportInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	report, err := h.service.UpdateReport(c.Request.Context(), c.Param("document_no"), &req, auth.Actor(c.Request.Context()))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, report)
}

// DeleteReport 删除事件报告（连同货品与调查）
// @Summary 删除事件报告
// @Tags Cases
// @Security BearerAuth
// @Produce json
// @Param document_no path string true "单号"
// @Success 200 {object} response.APIResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/cases/reports/{document_no} [delete]
func (h *CasesHandler) DeleteReport(c *gin.Context) {
	if err := h.service.DeleteReport(c.Request.Context(), c.Param("document_no"), auth.Actor(c.Request.Context())); err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccessMessage(c, "Case report deleted", nil)
}

// ============================================================================
// 调查
// ============================================================================

// UpsertInvestigation 创建或更新调查
// @Summary 保存调查
// @Description 调查信息完整时报告状态变为 Completed Investigate
// @Tags Cases
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param document_no path string true "报告单号"
// @Param request body cases.InvestigationInput true "调查内容"
// @Success 200 {object} response.APIResponse{data=cases.Investigation}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/cases/reports/{document_no}/investigation [put]
func (h *CasesHandler) UpsertInvestigation(c *gin.Context) {
	var req cases.InvestigationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	inv, err := h.service.UpsertInvestigation(c.Request.Context(), c.Param("document_no"), &req, auth.Actor(c.Request.Context()))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, inv)
}

// GetInvestigation 报告的调查
// @Summary 调查详情
// @Tags Cases
// @Security BearerAuth
// @Produce json
// @Param document_no path string true "报告单号"
// @Success 200 {object} response.APIResponse{data=cases.Investigation}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/cases/reports/{document_no}/investigation [get]
func (h *CasesHandler) GetInvestigation(c *gin.Context) {
	inv, err := h.service.GetInvestigation(c.Request.Context(), c.Param("document_no"))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, inv)
}

// ListInvestigations 调查列表
// @Summary 调查列表
// @Tags Cases
// @Security BearerAuth
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.APIResponse{data=response.ListResponse}
// @Router /api/cases/investigations [get]
func (h *CasesHandler) ListInvestigations(c *gin.Context) {
	var req common.PaginationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BindError(c, err)
		return
	}
	items, total, err := h.service.ListInvestigations(c.Request.Context(), req)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseList(c, items, total, req)
}

// ============================================================================
// 事故案件
// ============================================================================

// CreateAccident 创建事故案件
// @Summary 创建事故案件
// @Description 单号格式 AC-{站点}-{YYMM}-{序号}
// @Tags Cases
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body cases.AccidentInput true "案件内容"
// @Success 201 {object} response.APIResponse{data=cases.AccidentCase}
// @Failure 400 {object} response.ErrorResponse
// @Router /api/cases/accidents [post]
func (h *CasesHandler) CreateAccident(c *gin.Context) {
	var req cases.AccidentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	ac, err := h.service.CreateAccident(c.Request.Context(), &req, auth.Actor(c.Request.Context()))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseCreated(c, ac)
}

// ListAccidents 事故案件列表
// @Summary 事故案件列表
// @Tags Cases
// @Security BearerAuth
// @Produce json
// @Param site_id query int false "站点"
// @Param casestatus query string false "案件状态"
// @Param priority query string false "优先级"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.APIResponse{data=response.ListResponse}
// @Router /api/cases/accidents [get]
func (h *CasesHandler) ListAccidents(c *gin.Context) {
	var f cases.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		response.BindError(c, err)
		return
	}
	items, total, err := h.service.ListAccidents(c.Request.Context(), f)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseList(c, items, total, f.PaginationRequest)
}

// GetAccident 事故案件详情
// @Summary 事故案件详情
// @Tags Cases
// @Security BearerAuth
// @Produce json
// @Param document_no path string true "单号"
// @Success 200 {object} response.APIResponse{data=cases.AccidentCase}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/cases/accidents/{document_no} [get]
func (h *CasesHandler) GetAccident(c *gin.Context) {
	ac, err := h.service.GetAccident(c.Request.Context(), c.Param("document_no"))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, ac)
}

// UpdateAccident 修改事故案件
// @Summary 修改事故案件
// @Tags Cases
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param document_no path string true "单号"
// @Param request body cases.AccidentInput true "修改内容"
// @Success 200 {object} response.APIResponse{data=cases.AccidentCase}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/cases/accidents/{document_no} [put]
func (h *CasesHandler) UpdateAccident(c *gin.Context) {
	var req cases.AccidentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	ac, err := h.service.UpdateAccident(c.Request.Context(), c.Param("document_no"), &req, auth.Actor(c.Request.Context()))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, ac)
}

// DeleteAccident 删除事故案件
// @Summary 删除事故案件
// @Tags Cases
// @Security BearerAuth
// @Produce json
// @Param document_no path string true "单号"
// @Success 200 {object} response.APIResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/cases/accidents/{document_no} [delete]
func (h *CasesHandler) DeleteAccident(c *gin.Context) {
	if err := h.service.DeleteAccident(c.Request.Context(), c.Param("document_no"), auth.Actor(c.Request.Context())); err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccessMessage(c, "Accident case deleted", nil)
}
