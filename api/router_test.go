package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"incidentdesk/internal/config"
	"incidentdesk/internal/logger"
	"incidentdesk/internal/org"
	"incidentdesk/internal/worker/tasks"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type stubQueue struct {
	mu     sync.Mutex
	events []string
}

func (q *stubQueue) EnqueueFormNotification(_ context.Context, p tasks.FormNotificationPayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, p.Event)
	return nil
}

func (q *stubQueue) EnqueueApprovalReminder(tasks.ApprovalReminderPayload) error { return nil }
func (q *stubQueue) Close() error                                                 { return nil }

func ptr[T any](v T) *T { return &v }

// setupApp 不连接 Redis，黑名单与 OAuth2 state 使用内存实现
func setupApp(t *testing.T) (*gin.Engine, *stubQueue) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger.Set(zaptest.NewLogger(t))

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(Models()...))

	require.NoError(t, db.Create(&org.Department{ID: 1, NameEN: "IT"}).Error)
	for _, lv := range []uint{3, 7} {
		require.NoError(t, db.Create(&org.PositionLevel{ID: lv, LevelName: fmt.Sprintf("L%d", lv)}).Error)
		require.NoError(t, db.Create(&org.Position{ID: lv, NameEN: fmt.Sprintf("P%d", lv), PositionLevelID: ptr(lv)}).Error)
	}

	t.Setenv("JWT_SECRET_KEY", "router-test-secret")
	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: "test"},
		Auth:      config.AuthConfig{JWTAlgorithm: "HS256", Issuer: "incidentdesk", AccessTokenMinutes: 30},
		Numbering: config.NumberingConfig{SiteCodes: map[string]string{"2": "LB"}, FallbackCode: "XX"},
	}
	q := &stubQueue{}
	c := &AppContainer{DB: db, Config: cfg, QueueClient: q}
	require.NoError(t, c.initAuth(cfg))
	require.NoError(t, c.initDomain(db, cfg))
	return NewRouter(c), q
}

func call(t *testing.T, r http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func register(t *testing.T, r http.Handler, username, employeeID string, positionID uint) string {
	t.Helper()
	w, out := call(t, r, http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": username, "password": "s3cret", "firstname": username, "lastname": "Test",
		"employee_id": employeeID, "department_id": 1, "position_id": positionID,
		"email": username + "@example.com",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := out["data"].(map[string]any)
	return data["access_token"].(string)
}

func TestSystemEndpoints(t *testing.T) {
	r, _ := setupApp(t)

	w, out := call(t, r, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", out["status"])

	w, out = call(t, r, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "connected", out["database"])
	assert.Equal(t, "disabled", out["redis"])

	w, _ = call(t, r, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodOptions, "/api/forms/master", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r, _ := setupApp(t)
	for _, path := range []string{"/api/forms/master", "/api/cases/reports", "/api/audit/logs", "/api/auth/me"} {
		t.Run(path, func(t *testing.T) {
			w, out := call(t, r, http.MethodGet, path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, false, out["success"])
		})
	}
}

func TestApprovalFlowOverHTTP(t *testing.T) {
	r, q := setupApp(t)
	requester := register(t, r, "somchai", "E003", 3)
	approver := register(t, r, "manager", "E007", 7)

	w, out := call(t, r, http.MethodPost, "/api/forms/master", approver, map[string]any{
		"form_type": "IT", "form_code": "IT-001", "form_name": "IT Service Request", "form_status": "Active",
		"questions": []map[string]any{{"name": "title", "label": "Title", "type": "text", "required": true}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	form := out["data"].(map[string]any)
	questionID := form["questions"].([]any)[0].(map[string]any)["id"]

	w, _ = call(t, r, http.MethodPost, "/api/forms/rules", approver, map[string]any{
		"form_code": "IT-001", "level_no": 1, "creator_min": 1, "creator_max": 5,
		"approve_by_type": "position_level", "approve_by_value": 7, "same_department": true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, out = call(t, r, http.MethodGet, "/api/forms/IT-001/rules", approver, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, out["data"], 1)

	w, out = call(t, r, http.MethodPost, "/api/forms/submit", requester, map[string]any{
		"form_code": "IT-001", "created_by": "E003",
		"values": []map[string]any{{"question_id": questionID, "value_text": "New laptop"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	formID := out["data"].(map[string]any)["form_id"].(string)

	w, out = call(t, r, http.MethodGet, "/api/forms/pending-approvals", approver, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["data"], 1)

	w, _ = call(t, r, http.MethodPost, "/api/forms/"+formID+"/approve", requester, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, out = call(t, r, http.MethodPost, "/api/forms/"+formID+"/approve?remark=ok", approver, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Approved", out["data"].(map[string]any)["status"])

	q.mu.Lock()
	assert.Equal(t, []string{tasks.EventSubmitted, tasks.EventApproved}, q.events)
	q.mu.Unlock()

	w, out = call(t, r, http.MethodGet, "/api/audit/logs?resource=form_master", approver, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	items := out["data"].(map[string]any)["items"].([]any)
	require.NotEmpty(t, items)
	assert.Equal(t, "E007", items[0].(map[string]any)["actor"])
}

func TestCaseReportOverHTTP(t *testing.T) {
	r, _ := setupApp(t)
	token := register(t, r, "safety", "S001", 7)

	w, out := call(t, r, http.MethodPost, "/api/cases/reports", token, map[string]any{"site_id": 2, "estimated_cost": 100})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	docNo := out["data"].(map[string]any)["document_no"].(string)
	assert.Regexp(t, `^NC-LB-\d{4}-001$`, docNo)
	assert.Equal(t, "S001", out["data"].(map[string]any)["created_by"])

	w, _ = call(t, r, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = call(t, r, http.MethodGet, "/api/cases/reports/"+docNo, token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
