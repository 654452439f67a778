package forms

import (
	response "incidentdesk/api/handlers/common"
	"incidentdesk/internal/auth"
	"incidentdesk/internal/common"
	"incidentdesk/internal/forms"

	"github.com/gin-gonic/gin"
)

// CreateRule 为最新版本模板新增审批规则
// @Summary 新增审批规则
// @Description 同一版本同一步骤的有效规则，申请人职级区间不能重叠
// @Tags Forms
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body forms.RuleInput true "规则"
// @Success 201 {object} response.APIResponse{data=forms.ApprovalRule}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /api/forms/rules [post]
func (h *FormsHandler) CreateRule(c *gin.Context) {
	var req forms.RuleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	if req.FormCode == "" {
		common.ResponseBadRequest(c, "form_code is required")
		return
	}
	rule, err := h.rules.Create(c.Request.Context(), &req, auth.Actor(c.Request.Context()))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseCreated(c, rule)
}

// ListRules 最新版本模板的审批规则
// @Summary 审批规则列表
// @Tags Forms
// @Security BearerAuth
// @Produce json
// @Param form_code path string true "表单编码"
// @Success 200 {object} response.APIResponse{data=[]forms.ApprovalRule}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/forms/{form_code}/rules [get]
func (h *FormsHandler) ListRules(c *gin.Context) {
	// 与提交路由共用 :form_id 位置
	rules, err := h.rules.List(c.Request.Context(), c.Param("form_id"))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, rules)
}

// UpdateRule 修改审批规则
// @Summary 修改审批规则
// @Tags Forms
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "规则 ID"
// @Param request body forms.RuleInput true "规则"
// @Success 200 {object} response.APIResponse{data=forms.ApprovalRule}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /api/forms/rules/{id} [put]
func (h *FormsHandler) UpdateRule(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req forms.RuleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	rule, err := h.rules.Update(c.Request.Context(), id, &req, auth.Actor(c.Request.Context()))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, rule)
}

// DeleteRule 删除审批规则
// @Summary 删除审批规则
// @Tags Forms
// @Security BearerAuth
// @Produce json
// @Param id path int true "规则 ID"
// @Success 200 {object} response.APIResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/forms/rules/{id} [delete]
func (h *FormsHandler) DeleteRule(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.rules.Delete(c.Request.Context(), id, auth.Actor(c.Request.Context())); err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccessMessage(c, "Rule deleted", nil)
}
