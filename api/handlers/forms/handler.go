package forms

import (
	"net/http"
	"strconv"
	"time"

	"incidentdesk/internal/auth"
	"incidentdesk/internal/common"
	"incidentdesk/internal/forms"
	"incidentdesk/internal/org"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// FormsHandler 表单模板、审批规则、提交与审批
type FormsHandler struct {
	templates *forms.TemplateService
	rules     *forms.RuleService
	engine    *forms.Engine
	dir       *org.Directory
	bus       *forms.EventBus
	upgrader  websocket.Upgrader
}

// NewFormsHandler 创建表单处理器
func NewFormsHandler(
	templates *forms.TemplateService,
	rules *forms.RuleService,
	engine *forms.Engine,
	dir *org.Directory,
	bus *forms.EventBus,
) *FormsHandler {
	return &FormsHandler{
		templates: templates,
		rules:     rules,
		engine:    engine,
		dir:       dir,
		bus:       bus,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 5 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
	}
}

// employeeID 优先取查询参数，未提供时使用当前登录员工
// 已登录时 employee_id 必须与令牌中的员工一致，不能代他人操作
func employeeID(c *gin.Context) (string, bool) {
	query := c.Query("employee_id")
	if identity, ok := auth.GetIdentity(c); ok && identity.EmployeeID != "" {
		if query != "" && query != identity.EmployeeID {
			common.RespondError(c, common.ErrForbidden("employee_id does not match the signed-in employee"))
			return "", false
		}
		return identity.EmployeeID, true
	}
	if query != "" {
		return query, true
	}
	common.ResponseBadRequest(c, "employee_id is required")
	return "", false
}

// optionalVersion 解析 ?version=N
func optionalVersion(c *gin.Context) (*int, bool) {
	raw := c.Query("version")
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		common.ResponseBadRequest(c, "Invalid version")
		return nil, false
	}
	return &v, true
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		common.ResponseBadRequest(c, "Invalid "+name)
		return 0, false
	}
	return uint(v), true
}
