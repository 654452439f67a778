package forms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"incidentdesk/internal/audit"
	"incidentdesk/internal/auth"
	"incidentdesk/internal/config"
	"incidentdesk/internal/forms"
	"incidentdesk/internal/org"
	"incidentdesk/internal/sequence"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type listData struct {
	Items      json.RawMessage `json:"items"`
	Pagination struct {
		Total int64 `json:"total"`
	} `json:"pagination"`
}

func ptr[T any](v T) *T { return &v }

// fakeLogin 以请求头 X-Employee 模拟已登录员工
func fakeLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if emp := c.GetHeader("X-Employee"); emp != "" {
			identity := &auth.Identity{Username: strings.ToLower(emp), EmployeeID: emp}
			c.Set(string(auth.IdentityContextKey), identity)
			c.Request = c.Request.WithContext(auth.SetIdentity(c.Request.Context(), identity))
		}
		c.Next()
	}
}

func setupRouter(t *testing.T) (*gin.Engine, *forms.EventBus) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	models := append(org.Models(), forms.Models()...)
	models = append(models, &sequence.Counter{}, &audit.Log{})
	require.NoError(t, db.AutoMigrate(models...))

	require.NoError(t, db.Create(&[]org.Department{{ID: 1, NameEN: "IT"}, {ID: 2, NameEN: "HR"}}).Error)
	for _, lv := range []uint{3, 5, 7} {
		require.NoError(t, db.Create(&org.PositionLevel{ID: lv, LevelName: fmt.Sprintf("L%d", lv)}).Error)
		require.NoError(t, db.Create(&org.Position{ID: lv, NameEN: fmt.Sprintf("P%d", lv), PositionLevelID: ptr(lv)}).Error)
	}
	require.NoError(t, db.Create(&[]org.User{
		{Username: "it3", EmployeeID: "E003", DepartmentID: ptr(uint(1)), PositionID: ptr(uint(3)), Email: "it3@example.com"},
		{Username: "it5", EmployeeID: "E005", DepartmentID: ptr(uint(1)), PositionID: ptr(uint(5)), Email: "it5@example.com"},
		{Username: "it7", EmployeeID: "E007", DepartmentID: ptr(uint(1)), PositionID: ptr(uint(7)), Email: "it7@example.com"},
	}).Error)

	log := zaptest.NewLogger(t)
	recorder := audit.NewRecorder(db)
	dir := org.NewDirectory(db, org.WithLogger(log))
	resolver := forms.NewResolver(db, dir)
	seq := sequence.NewGenerator(config.NumberingConfig{FallbackCode: "XX"}, sequence.WithLogger(log))
	bus := forms.NewEventBus(8)
	engine := forms.NewEngine(db, dir, resolver, seq, forms.WithEventBus(bus), forms.WithEngineLogger(log))

	h := NewFormsHandler(
		forms.NewTemplateService(db, recorder, log),
		forms.NewRuleService(db, recorder, log),
		engine, dir, bus,
	)

	r := gin.New()
	r.Use(fakeLogin())
	g := r.Group("/api/forms")
	g.POST("/master", h.CreateTemplate)
	g.GET("/master", h.ListTemplates)
	g.GET("/master/:form_code", h.GetTemplate)
	g.PATCH("/master/:form_code", h.NewTemplateVersion)
	g.PATCH("/master/:form_code/activate", h.ActivateTemplate)
	g.PATCH("/master/:form_code/status", h.SetTemplateStatus)
	g.POST("/rules", h.CreateRule)
	g.PUT("/rules/:id", h.UpdateRule)
	g.DELETE("/rules/:id", h.DeleteRule)
	g.GET("/:form_id/rules", h.ListRules)
	g.POST("/submit", h.Submit)
	g.GET("/pending-approvals", h.PendingApprovals)
	g.GET("/submissions", h.ListSubmissions)
	g.GET("/submissions/:form_id", h.GetSubmission)
	g.GET("/submissions/:form_id/events", h.SubmissionEvents)
	g.PUT("/:form_id/status", h.UpdateStatus)
	g.PUT("/:form_id/details", h.UpdateDetails)
	g.POST("/:form_id/approve", h.Approve)
	g.POST("/:form_id/reject", h.Reject)
	g.POST("/approvers/departments", h.AssignDepartments)
	g.GET("/approvers/:employee_id/departments", h.ListDepartments)
	g.DELETE("/approvers/:employee_id/departments/:department_id", h.RemoveDepartment)
	return r, bus
}

func doJSON(t *testing.T, r http.Handler, method, path, employee string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if employee != "" {
		req.Header.Set("X-Employee", employee)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

// createTemplate IT-001：L1-5 需同部门 L7 审批
func createTemplate(t *testing.T, r http.Handler) forms.FormMaster {
	t.Helper()
	w, env := doJSON(t, r, http.MethodPost, "/api/forms/master", "admin", forms.TemplateInput{
		FormType:   "IT",
		FormCode:   "IT-001",
		FormName:   "IT Service Request",
		FormStatus: forms.FormStatusActive,
		Questions: []forms.QuestionInput{
			{Name: "title", Label: "Title", Type: forms.QuestionText, IsRequired: true, SortOrder: 1},
			{Name: "category", Label: "Category", Type: forms.QuestionDropdown, SortOrder: 2,
				Options: []forms.OptionInput{{Value: "hardware"}, {Value: "software"}}},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var form forms.FormMaster
	require.NoError(t, json.Unmarshal(env.Data, &form))

	w, _ = doJSON(t, r, http.MethodPost, "/api/forms/rules", "admin", forms.RuleInput{
		FormCode: "IT-001", LevelNo: 1, CreatorMin: 1, CreatorMax: 5,
		ApproveByType: org.ApproveByLevel, ApproveByValue: ptr(7), SameDepartment: true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return form
}

func submit(t *testing.T, r http.Handler, form forms.FormMaster, title string) forms.SubmitResult {
	t.Helper()
	w, env := doJSON(t, r, http.MethodPost, "/api/forms/submit", "E003", map[string]any{
		"form_code":  "IT-001",
		"created_by": "E003",
		"values": []map[string]any{
			{"question_id": form.Questions[0].ID, "value_text": title},
			{"question_id": form.Questions[1].ID, "value_text": "hardware"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res forms.SubmitResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	return res
}

func TestTemplateAndRuleEndpoints(t *testing.T) {
	r, _ := setupRouter(t)
	createTemplate(t, r)

	t.Run("重复编码返回 400", func(t *testing.T) {
		w, _ := doJSON(t, r, http.MethodPost, "/api/forms/master", "admin", forms.TemplateInput{FormType: "IT", FormCode: "IT-001"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("查询模板", func(t *testing.T) {
		w, env := doJSON(t, r, http.MethodGet, "/api/forms/master/IT-001", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var form forms.FormMaster
		require.NoError(t, json.Unmarshal(env.Data, &form))
		assert.Equal(t, 1, form.Version)
		assert.Len(t, form.Questions, 2)

		w, _ = doJSON(t, r, http.MethodGet, "/api/forms/master/IT-001?version=abc", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w, _ = doJSON(t, r, http.MethodGet, "/api/forms/master/NOPE", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("新版本与启用", func(t *testing.T) {
		w, env := doJSON(t, r, http.MethodPatch, "/api/forms/master/IT-001", "admin", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var v2 forms.FormMaster
		require.NoError(t, json.Unmarshal(env.Data, &v2))
		assert.Equal(t, 2, v2.Version)
		assert.Equal(t, forms.FormStatusDraft, v2.FormStatus)

		w, env = doJSON(t, r, http.MethodPatch, "/api/forms/master/IT-001/activate?version=2", "admin", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.NoError(t, json.Unmarshal(env.Data, &v2))
		assert.Equal(t, forms.FormStatusActive, v2.FormStatus)

		w, env = doJSON(t, r, http.MethodGet, "/api/forms/master/IT-001?version=1", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var v1 forms.FormMaster
		require.NoError(t, json.Unmarshal(env.Data, &v1))
		assert.Equal(t, forms.FormStatusInactive, v1.FormStatus)
	})

	t.Run("修改模板状态", func(t *testing.T) {
		w, _ := doJSON(t, r, http.MethodPatch, "/api/forms/master/IT-001/status", "admin", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w, _ = doJSON(t, r, http.MethodPatch, "/api/forms/master/IT-001/status?status=Bogus", "admin", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w, _ = doJSON(t, r, http.MethodPatch, "/api/forms/master/IT-001/status?status=Archived", "admin", nil)
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("模板列表", func(t *testing.T) {
		w, env := doJSON(t, r, http.MethodGet, "/api/forms/master?form_type=IT", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var list listData
		require.NoError(t, json.Unmarshal(env.Data, &list))
		assert.Equal(t, int64(1), list.Pagination.Total)
	})

	t.Run("规则增删改查", func(t *testing.T) {
		w, env := doJSON(t, r, http.MethodGet, "/api/forms/IT-001/rules", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var rules []forms.ApprovalRule
		require.NoError(t, json.Unmarshal(env.Data, &rules))
		require.Len(t, rules, 1)

		w, _ = doJSON(t, r, http.MethodPost, "/api/forms/rules", "admin", forms.RuleInput{
			FormCode: "IT-001", LevelNo: 1, CreatorMin: 4, CreatorMax: 8, ApproveByType: org.ApproveByAuto,
		})
		assert.Equal(t, http.StatusConflict, w.Code)

		w, _ = doJSON(t, r, http.MethodPost, "/api/forms/rules", "admin", forms.RuleInput{LevelNo: 1, ApproveByType: org.ApproveByAuto})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		path := fmt.Sprintf("/api/forms/rules/%d", rules[0].ID)
		w, _ = doJSON(t, r, http.MethodPut, path, "admin", forms.RuleInput{
			LevelNo: 1, CreatorMin: 1, CreatorMax: 6, ApproveByType: org.ApproveByLevel, ApproveByValue: ptr(7),
		})
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w, _ = doJSON(t, r, http.MethodPut, "/api/forms/rules/abc", "admin", forms.RuleInput{LevelNo: 1, ApproveByType: org.ApproveByAuto})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w, _ = doJSON(t, r, http.MethodDelete, path, "admin", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		w, _ = doJSON(t, r, http.MethodDelete, path, "admin", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSubmissionEndpoints(t *testing.T) {
	r, _ := setupRouter(t)
	form := createTemplate(t, r)
	res := submit(t, r, form, "Laptop")
	require.NotEmpty(t, res.FormID)
	assert.Equal(t, forms.ApproveInProgress, res.StatusApprove)

	t.Run("缺少申请人返回 400", func(t *testing.T) {
		w, _ := doJSON(t, r, http.MethodPost, "/api/forms/submit", "E003", map[string]any{"form_code": "IT-001"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("待审批列表", func(t *testing.T) {
		w, env := doJSON(t, r, http.MethodGet, "/api/forms/pending-approvals?employee_id=E007", "", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var items []forms.PendingApproval
		require.NoError(t, json.Unmarshal(env.Data, &items))
		require.Len(t, items, 1)
		assert.Equal(t, res.FormID, items[0].FormID)

		w, env = doJSON(t, r, http.MethodGet, "/api/forms/pending-approvals", "E005", nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(env.Data, &items))
		assert.Empty(t, items)

		w, env = doJSON(t, r, http.MethodGet, "/api/forms/pending-approvals", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "employee_id is required", env.Message)
	})

	t.Run("修改答案", func(t *testing.T) {
		w, _ := doJSON(t, r, http.MethodPut, "/api/forms/"+res.FormID+"/details", "E003", map[string]any{
			"values": []map[string]any{{"question_id": form.Questions[0].ID, "value_text": "Desktop"}},
		})
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w, _ = doJSON(t, r, http.MethodPut, "/api/forms/"+res.FormID+"/details", "E003", map[string]any{
			"values": []map[string]any{{"question_id": 9999, "value_text": "x"}},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("不能以他人身份审批", func(t *testing.T) {
		w, env := doJSON(t, r, http.MethodPost, "/api/forms/"+res.FormID+"/approve?employee_id=E007", "E003", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "employee_id does not match the signed-in employee", env.Message)

		w, _ = doJSON(t, r, http.MethodPost, "/api/forms/"+res.FormID+"/reject?employee_id=E007", "E003", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w, env = doJSON(t, r, http.MethodGet, "/api/forms/submissions/"+res.FormID, "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var sub forms.FormSubmission
		require.NoError(t, json.Unmarshal(env.Data, &sub))
		assert.Equal(t, forms.ApproveInProgress, sub.StatusApprove)
		assert.Empty(t, sub.ApprovalLogs)

		w, _ = doJSON(t, r, http.MethodGet, "/api/forms/pending-approvals?employee_id=E007", "E007", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("无权限审批返回 403", func(t *testing.T) {
		w, env := doJSON(t, r, http.MethodPost, "/api/forms/"+res.FormID+"/approve?employee_id=E005", "", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "Not authorized to approve", env.Message)
	})

	t.Run("审批通过", func(t *testing.T) {
		w, env := doJSON(t, r, http.MethodPost, "/api/forms/"+res.FormID+"/approve?remark=ok", "E007", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var decision forms.DecisionResult
		require.NoError(t, json.Unmarshal(env.Data, &decision))
		assert.Equal(t, forms.ApproveApproved, decision.Status)

		w, _ = doJSON(t, r, http.MethodPost, "/api/forms/"+res.FormID+"/reject", "E007", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("提交详情与列表", func(t *testing.T) {
		w, env := doJSON(t, r, http.MethodGet, "/api/forms/submissions/"+res.FormID, "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var sub forms.FormSubmission
		require.NoError(t, json.Unmarshal(env.Data, &sub))
		assert.Equal(t, "E003", sub.CreatedBy)

		w, env = doJSON(t, r, http.MethodGet, "/api/forms/submissions?form_code=IT-001&created_by=E003", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var list listData
		require.NoError(t, json.Unmarshal(env.Data, &list))
		assert.Equal(t, int64(1), list.Pagination.Total)

		w, _ = doJSON(t, r, http.MethodGet, "/api/forms/submissions/NOPE", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("修改处理状态", func(t *testing.T) {
		path := "/api/forms/" + res.FormID + "/status"
		w, _ := doJSON(t, r, http.MethodPut, path+"?employee_id=E007", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w, _ = doJSON(t, r, http.MethodPut, path+"?new_status=Done&employee_id=E007", "", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		w, env := doJSON(t, r, http.MethodPut, path+"?new_status=Open&employee_id=E007", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Submission is already done", env.Message)
	})
}

func TestApproverDepartmentEndpoints(t *testing.T) {
	r, _ := setupRouter(t)

	w, env := doJSON(t, r, http.MethodPost, "/api/forms/approvers/departments", "admin",
		AssignDepartmentsRequest{EmployeeID: "E007", DepartmentIDs: []uint{1, 2}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rows []org.ApproverDepartment
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	assert.Len(t, rows, 2)

	w, _ = doJSON(t, r, http.MethodPost, "/api/forms/approvers/departments", "admin",
		AssignDepartmentsRequest{EmployeeID: "E007"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/api/forms/approvers/departments", "admin",
		AssignDepartmentsRequest{EmployeeID: "GHOST", DepartmentIDs: []uint{1}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = doJSON(t, r, http.MethodDelete, "/api/forms/approvers/E007/departments/2", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = doJSON(t, r, http.MethodDelete, "/api/forms/approvers/E007/departments/2", "admin", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = doJSON(t, r, http.MethodGet, "/api/forms/approvers/E007/departments", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, uint(1), rows[0].DepartmentID)
}

func TestSubmissionEventStream(t *testing.T) {
	r, bus := setupRouter(t)
	form := createTemplate(t, r)
	res := submit(t, r, form, "Monitor")

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/forms/submissions/" + res.FormID + "/events"

	t.Run("未知提交返回 404", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/forms/submissions/NOPE/events", nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "connected", hello["type"])
	assert.Equal(t, 1, bus.Subscribers(res.FormID))

	w, _ := doJSON(t, r, http.MethodPost, "/api/forms/"+res.FormID+"/approve", "E007", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var evt forms.SubmissionEvent
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, forms.EventApproved, evt.Type)
	assert.Equal(t, res.FormID, evt.FormID)
	assert.Equal(t, "E007", evt.Actor)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return bus.Subscribers(res.FormID) == 0 }, 3*time.Second, 20*time.Millisecond)
}
