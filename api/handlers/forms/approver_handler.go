package forms

import (
	response "incidentdesk/api/handlers/common"
	"incidentdesk/internal/common"

	"github.com/gin-gonic/gin"
)

// AssignDepartmentsRequest 审批人负责部门分配
type AssignDepartmentsRequest struct {
	EmployeeID    string `json:"employee_id" binding:"required"`
	DepartmentIDs []uint `json:"department_ids" binding:"required,min=1"`
}

// AssignDepartments 分配审批人负责部门
// @Summary 分配负责部门
// @Tags Approvers
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body AssignDepartmentsRequest true "员工与部门"
// @Success 200 {object} response.APIResponse{data=[]org.ApproverDepartment}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/forms/approvers/departments [post]
func (h *FormsHandler) AssignDepartments(c *gin.Context) {
	var req AssignDepartmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	rows, err := h.dir.AssignDepartments(c.Request.Context(), req.EmployeeID, req.DepartmentIDs)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, rows)
}

// ListDepartments 审批人负责的部门
// @Summary 负责部门列表
// @Tags Approvers
// @Security BearerAuth
// @Produce json
// @Param employee_id path string true "员工编号"
// @Success 200 {object} response.APIResponse{data=[]org.ApproverDepartment}
// @Router /api/forms/approvers/{employee_id}/departments [get]
func (h *FormsHandler) ListDepartments(c *gin.Context) {
	rows, err := h.dir.ListDepartments(c.Request.Context(), c.Param("employee_id"))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, rows)
}

// RemoveDepartment 停用审批人的负责部门
// @Summary 移除负责部门
// @Tags Approvers
// @Security BearerAuth
// @Produce json
// @Param employee_id path string true "员工编号"
// @Param department_id path int true "部门 ID"
// @Success 200 {object} response.APIResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/forms/approvers/{employee_id}/departments/{department_id} [delete]
func (h *FormsHandler) RemoveDepartment(c *gin.Context) {
	depID, ok := uintParam(c, "department_id")
	if !ok {
		return
	}
	if err := h.dir.RemoveDepartment(c.Request.Context(), c.Param("employee_id"), depID); err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccessMessage(c, "Mapping removed", nil)
}
