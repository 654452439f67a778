package api

import (
	"incidentdesk/internal/auth"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册全部业务路由
func RegisterRoutes(router *gin.Engine, container *AppContainer, handlers *Handlers) {
	registerAuthRoutes(router, container, handlers)

	apiGroup := router.Group("/api")
	apiGroup.Use(auth.AuthMiddleware(container.JWTService))

	registerFormRoutes(apiGroup, handlers)
	registerCaseRoutes(apiGroup, handlers)
	registerAuditRoutes(apiGroup, handlers)
}

func registerAuthRoutes(router *gin.Engine, c *AppContainer, h *Handlers) {
	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login/google", h.Auth.LoginGoogle)
		authGroup.GET("/google/url", h.Auth.GoogleURL)
		authGroup.GET("/google/callback", h.Auth.GoogleCallback)
		authGroup.POST("/google/callback", h.Auth.GoogleCallback)
	}

	protected := authGroup.Group("")
	protected.Use(auth.AuthMiddleware(c.JWTService))
	{
		protected.GET("/me", h.Auth.Me)
		protected.POST("/logout", h.Auth.Logout)
	}
}

func registerFormRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	formsGroup := apiGroup.Group("/forms")
	{
		// 模板
		formsGroup.POST("/master", h.Forms.CreateTemplate)
		formsGroup.GET("/master", h.Forms.ListTemplates)
		formsGroup.GET("/master/:form_code", h.Forms.GetTemplate)
		formsGroup.PATCH("/master/:form_code", h.Forms.NewTemplateVersion)
		formsGroup.PATCH("/master/:form_code/activate", h.Forms.ActivateTemplate)
		formsGroup.PATCH("/master/:form_code/status", h.Forms.SetTemplateStatus)

		// 审批规则
		formsGroup.POST("/rules", h.Forms.CreateRule)
		formsGroup.PUT("/rules/:id", h.Forms.UpdateRule)
		formsGroup.DELETE("/rules/:id", h.Forms.DeleteRule)

		// 审批人负责部门
		formsGroup.POST("/approvers/departments", h.Forms.AssignDepartments)
		formsGroup.GET("/approvers/:employee_id/departments", h.Forms.ListDepartments)
		formsGroup.DELETE("/approvers/:employee_id/departments/:department_id", h.Forms.RemoveDepartment)

		// 提交与审批
		formsGroup.POST("/submit", h.Forms.Submit)
		formsGroup.GET("/pending-approvals", h.Forms.PendingApprovals)
		formsGroup.GET("/submissions", h.Forms.ListSubmissions)
		formsGroup.GET("/submissions/:form_id", h.Forms.GetSubmission)
		formsGroup.GET("/submissions/:form_id/events", h.Forms.SubmissionEvents)

		// 同一位置的路径参数必须同名，rules 路由的 :form_id 实为表单编码
		formsGroup.GET("/:form_id/rules", h.Forms.ListRules)
		formsGroup.PUT("/:form_id/status", h.Forms.UpdateStatus)
		formsGroup.PUT("/:form_id/details", h.Forms.UpdateDetails)
		formsGroup.POST("/:form_id/approve", h.Forms.Approve)
		formsGroup.POST("/:form_id/reject", h.Forms.Reject)
	}
}

func registerCaseRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	casesGroup := apiGroup.Group("/cases")
	{
		casesGroup.POST("/reports", h.Cases.CreateReport)
		casesGroup.GET("/reports", h.Cases.ListReports)
		casesGroup.GET("/reports/:document_no", h.Cases.GetReport)
		casesGroup.PUT("/reports/:document_no", h.Cases.UpdateReport)
		casesGroup.DELETE("/reports/:document_no", h.Cases.DeleteReport)
		casesGroup.PUT("/reports/:document_no/investigation", h.Cases.UpsertInvestigation)
		casesGroup.GET("/reports/:document_no/investigation", h.Cases.GetInvestigation)
		casesGroup.GET("/investigations", h.Cases.ListInvestigations)

		casesGroup.POST("/accidents", h.Cases.CreateAccident)
		casesGroup.GET("/accidents", h.Cases.ListAccidents)
		casesGroup.GET("/accidents/:document_no", h.Cases.GetAccident)
		casesGroup.PUT("/accidents/:document_no", h.Cases.UpdateAccident)
		casesGroup.DELETE("/accidents/:document_no", h.Cases.DeleteAccident)
	}
}

func registerAuditRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	apiGroup.GET("/audit/logs", h.Audit.ListLogs)
}
