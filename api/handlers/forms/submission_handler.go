package forms

import (
	"context"

	response "incidentdesk/api/handlers/common"
	"incidentdesk/internal/auth"
	"incidentdesk/internal/common"
	"incidentdesk/internal/forms"

	"github.com/gin-gonic/gin"
)

// UpdateDetailsRequest 修改答案请求
type UpdateDetailsRequest struct {
	Values []forms.AnswerInput `json:"values" binding:"required,dive"`
}

// Submit 提交表单
// @Summary 提交表单
// @Description 使用编码对应的 Active 模板，生成 form_id 并进入第一步审批或自动通过
// @Tags Forms
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body forms.SubmitInput true "提交内容"
// @Success 201 {object} response.APIResponse{data=forms.SubmitResult}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/forms/submit [post]
func (h *FormsHandler) Submit(c *gin.Context) {
	var req forms.SubmitInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	result, err := h.engine.Submit(c.Request.Context(), &req)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseCreated(c, result)
}

// Approve 审批通过当前步骤
// @Summary 审批通过
// @Tags Forms
// @Security BearerAuth
// @Produce json
// @Param form_id path string true "提交编号"
// @Param employee_id query string false "审批人员工编号，须与当前登录员工一致"
// @Param remark query string false "审批意见"
// @Success 200 {object} response.APIResponse{data=forms.DecisionResult}
// @Failure 400 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/forms/{form_id}/approve [post]
func (h *FormsHandler) Approve(c *gin.Context) {
	h.decide(c, h.engine.Approve)
}

// Reject 驳回提交
// @Summary 审批驳回
// @Tags Forms
// @Security BearerAuth
// @Produce json
// @Param form_id path string true "提交编号"
// @Param employee_id query string false "审批人员工编号，须与当前登录员工一致"
// @Param remark query string false "驳回原因"
// @Success 200 {object} response.APIResponse{data=forms.DecisionResult}
// @Failure 400 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/forms/{form_id}/reject [post]
func (h *FormsHandler) Reject(c *gin.Context) {
	h.decide(c, h.engine.Reject)
}

type decideFunc func(ctx context.Context, formID, approverID, remark string) (*forms.DecisionResult, error)

func (h *FormsHandler) decide(c *gin.Context, fn decideFunc) {
	approver, ok := employeeID(c)
	if !ok {
		return
	}
	result, err := fn(c.Request.Context(), c.Param("form_id"), approver, c.Query("remark"))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, result)
}

// UpdateStatus 修改提交的处理状态
// @Summary 修改处理状态
// @Description Done 为终态，不可再修改
// @Tags Forms
// @Security BearerAuth
// @Produce json
// @Param form_id path string true "提交编号"
// @Param new_status query string true "Open/In-Progress/Done/Backlog"
// @Param employee_id query string false "操作人员工编号，须与当前登录员工一致"
// @Success 200 {object} response.APIResponse{data=forms.FormSubmission}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/forms/{form_id}/status [put]
func (h *FormsHandler) UpdateStatus(c *gin.Context) {
	status := c.Query("new_status")
	if status == "" {
		common.ResponseBadRequest(c, "new_status is required")
		return
	}
	actor, ok := employeeID(c)
	if !ok {
		return
	}
	sub, err := h.engine.UpdateStatus(c.Request.Context(), c.Param("form_id"), status, actor)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, sub)
}

// UpdateDetails 修改提交的答案
// @Summary 修改提交答案
// @Description 已完成的提交不可修改，变化写入变更记录
// @Tags Forms
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param form_id path string true "提交编号"
// @Param request body UpdateDetailsRequest true "答案"
// @Success 200 {object} response.APIResponse{data=forms.FormSubmission}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/forms/{form_id}/details [put]
func (h *FormsHandler) UpdateDetails(c *gin.Context) {
	var req UpdateDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	sub, err := h.engine.UpdateDetails(c.Request.Context(), c.Param("form_id"), req.Values, auth.Actor(c.Request.Context()))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, sub)
}

// PendingApprovals 当前员工可审批的提交
// @Summary 待我审批
// @Tags Forms
// @Security BearerAuth
// @Produce json
// @Param employee_id query string false "审批人员工编号，须与当前登录员工一致"
// @Success 200 {object} response.APIResponse{data=[]forms.PendingApproval}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/forms/pending-approvals [get]
func (h *FormsHandler) PendingApprovals(c *gin.Context) {
	approver, ok := employeeID(c)
	if !ok {
		return
	}
	items, err := h.engine.PendingApprovals(c.Request.Context(), approver)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, items)
}

// ListSubmissions 提交列表
// @Summary 提交列表
// @Tags Forms
// @Security BearerAuth
// @Produce json
// @Param form_code query string false "表单编码"
// @Param status query string false "处理状态"
// @Param status_approve query string false "审批状态"
// @Param created_by query string false "申请人员工编号"
// @Param date_from query string false "开始日期 YYYY-MM-DD"
// @Param date_to query string false "结束日期 YYYY-MM-DD"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.APIResponse{data=response.ListResponse}
// @Router /api/forms/submissions [get]
func (h *FormsHandler) ListSubmissions(c *gin.Context) {
	var f forms.SubmissionFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		response.BindError(c, err)
		return
	}
	items, total, err := h.engine.List(c.Request.Context(), f)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseList(c, items, total, f.PaginationRequest)
}

// GetSubmission 提交详情（含答案与审批日志）
// @Summary 提交详情
// @Tags Forms
// @Security BearerAuth
// @Produce json
// @Param form_id path string true "提交编号"
// @Success 200 {object} response.APIResponse{data=forms.FormSubmission}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/forms/submissions/{form_id} [get]
func (h *FormsHandler) GetSubmission(c *gin.Context) {
	sub, err := h.engine.Get(c.Request.Context(), c.Param("form_id"))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, sub)
}
