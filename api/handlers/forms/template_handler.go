package forms

import (
	response "incidentdesk/api/handlers/common"
	"incidentdesk/internal/auth"
	"incidentdesk/internal/common"
	"incidentdesk/internal/forms"

	"github.com/gin-gonic/gin"
)

// CreateTemplate 创建表单模板
// @Summary 创建表单模板
// @Description 表单编码已存在时返回 400
// @Tags Forms
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body forms.TemplateInput true "模板定义"
// @Success 201 {object} response.APIResponse{data=forms.FormMaster}
// @Failure 400 {object} response.ErrorResponse
// @Router /api/forms/master [post]
func (h *FormsHandler) CreateTemplate(c *gin.Context) {
	var req forms.TemplateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	form, err := h.templates.Create(c.Request.Context(), &req, auth.Actor(c.Request.Context()))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseCreated(c, form)
}

// ListTemplates 模板列表（仅最新版本）
// @Summary 模板列表
// @Tags Forms
// @Security BearerAuth
// @Produce json
// @Param status query string false "Draft/Active/Archived/Inactive"
// @Param form_type query string false "表单类型"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.APIResponse{data=response.ListResponse}
// @Router /api/forms/master [get]
func (h *FormsHandler) ListTemplates(c *gin.Context) {
	var f forms.TemplateFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		response.BindError(c, err)
		return
	}
	items, total, err := h.templates.List(c.Request.Context(), f)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseList(c, items, total, f.PaginationRequest)
}

// GetTemplate 模板详情
// @Summary 模板详情
// @Description 默认返回最新版本，?version=N 指定版本
// @Tags Forms
// @Security BearerAuth
// @Produce json
// @Param form_code path string true "表单编码"
// @Param version query int false "版本号"
// @Success 200 {object} response.APIResponse{data=forms.FormMaster}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/forms/master/{form_code} [get]
func (h *FormsHandler) GetTemplate(c *gin.Context) {
	version, ok := optionalVersion(c)
	if !ok {
		return
	}
	form, err := h.templates.Get(c.Request.Context(), c.Param("form_code"), version)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, form)
}

// NewTemplateVersion 复制最新版本生成新草稿版本
// @Summary 新建模板版本
// @Description 复制题目、选项与审批规则，新版本为 Draft 且成为最新版本
// @Tags Forms
// @Security BearerAuth
// @Produce json
// @Param form_code path string true "表单编码"
// @Success 200 {object} response.APIResponse{data=forms.FormMaster}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/forms/master/{form_code} [patch]
func (h *FormsHandler) NewTemplateVersion(c *gin.Context) {
	form, err := h.templates.CloneVersion(c.Request.Context(), c.Param("form_code"), auth.Actor(c.Request.Context()))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, form)
}

// ActivateTemplate 启用指定版本
// @Summary 启用模板版本
// @Description 同编码的其他 Active 版本变为 Inactive
// @Tags Forms
// @Security BearerAuth
// @Produce json
// @Param form_code path string true "表单编码"
// @Param version query int false "版本号，默认最新"
// @Success 200 {object} response.APIResponse{data=forms.FormMaster}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/forms/master/{form_code}/activate [patch]
func (h *FormsHandler) ActivateTemplate(c *gin.Context) {
	version, ok := optionalVersion(c)
	if !ok {
		return
	}
	form, err := h.templates.Activate(c.Request.Context(), c.Param("form_code"), version, auth.Actor(c.Request.Context()))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, form)
}

// SetTemplateStatus 修改最新版本状态
// @Summary 修改模板状态
// @Tags Forms
// @Security BearerAuth
// @Produce json
// @Param form_code path string true "表单编码"
// @Param status query string true "Draft/Active/Archived/Inactive"
// @Success 200 {object} response.APIResponse{data=forms.FormMaster}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/forms/master/{form_code}/status [patch]
func (h *FormsHandler) SetTemplateStatus(c *gin.Context) {
	status := c.Query("status")
	if status == "" {
		common.ResponseBadRequest(c, "status is required")
		return
	}
	form, err := h.templates.SetStatus(c.Request.Context(), c.Param("form_code"), status, auth.Actor(c.Request.Context()))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, form)
}
