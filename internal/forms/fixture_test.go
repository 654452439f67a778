package forms

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"incidentdesk/internal/audit"
	"incidentdesk/internal/common"
	"incidentdesk/internal/config"
	"incidentdesk/internal/org"
	"incidentdesk/internal/sequence"
	"incidentdesk/internal/worker/tasks"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func ptr[T any](v T) *T { return &v }

type recordingQueue struct {
	mu       sync.Mutex
	payloads []tasks.FormNotificationPayload
	err      error
}

func (q *recordingQueue) EnqueueFormNotification(_ context.Context, p tasks.FormNotificationPayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.payloads = append(q.payloads, p)
	return nil
}

func (q *recordingQueue) events() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.payloads))
	for _, p := range q.payloads {
		out = append(out, p.Event)
	}
	return out
}

type fixture struct {
	db        *gorm.DB
	dir       *org.Directory
	resolver  *Resolver
	templates *TemplateService
	rules     *RuleService
	engine    *Engine
	queue     *recordingQueue
	bus       *EventBus
	clock     time.Time
}

// setupFixture 组织架构：部门 1=IT 2=HR；职位 id 与职级相同
func setupFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	models := append(org.Models(), Models()...)
	models = append(models, &sequence.Counter{}, &audit.Log{})
	require.NoError(t, db.AutoMigrate(models...))

	require.NoError(t, db.Create(&[]org.Department{{ID: 1, NameEN: "IT"}, {ID: 2, NameEN: "HR"}}).Error)
	for _, lv := range []uint{3, 5, 7, 8, 10} {
		require.NoError(t, db.Create(&org.PositionLevel{ID: lv, LevelName: fmt.Sprintf("L%d", lv)}).Error)
		require.NoError(t, db.Create(&org.Position{ID: lv, NameEN: fmt.Sprintf("P%d", lv), PositionLevelID: ptr(lv)}).Error)
	}
	users := []org.User{
		{Username: "it3", EmployeeID: "E003", Firstname: "Somchai", Lastname: "Dee", DepartmentID: ptr(uint(1)), PositionID: ptr(uint(3)), Email: "it3@example.com"},
		{Username: "it5", EmployeeID: "E005", DepartmentID: ptr(uint(1)), PositionID: ptr(uint(5)), Email: "it5@example.com"},
		{Username: "it7", EmployeeID: "E007", DepartmentID: ptr(uint(1)), PositionID: ptr(uint(7)), Email: "it7@example.com"},
		{Username: "it8", EmployeeID: "E008", DepartmentID: ptr(uint(1)), PositionID: ptr(uint(8)), Email: "it8@example.com"},
		{Username: "hr3", EmployeeID: "H003", DepartmentID: ptr(uint(2)), PositionID: ptr(uint(3)), Email: "hr3@example.com"},
		{Username: "hr7", EmployeeID: "H007", DepartmentID: ptr(uint(2)), PositionID: ptr(uint(7)), Email: "hr7@example.com"},
		{Username: "hr10", EmployeeID: "H010", DepartmentID: ptr(uint(2)), PositionID: ptr(uint(10)), Email: "hr10@example.com"},
		{Username: "nopos", EmployeeID: "E000", DepartmentID: ptr(uint(1)), Email: "nopos@example.com"},
	}
	require.NoError(t, db.Create(&users).Error)

	log := zaptest.NewLogger(t)
	recorder := audit.NewRecorder(db)
	dir := org.NewDirectory(db, org.WithLogger(log))
	resolver := NewResolver(db, dir)
	seq := sequence.NewGenerator(config.NumberingConfig{FallbackCode: "XX"}, sequence.WithLogger(log))

	f := &fixture{
		db:        db,
		dir:       dir,
		resolver:  resolver,
		templates: NewTemplateService(db, recorder, log),
		rules:     NewRuleService(db, recorder, log),
		queue:     &recordingQueue{},
		bus:       NewEventBus(8),
		clock:     time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.engine = NewEngine(db, dir, resolver, seq,
		WithQueue(f.queue),
		WithEventBus(f.bus),
		WithEngineLogger(log),
		WithClock(func() time.Time { return f.clock }),
	)
	return f
}

// createITForm IT-001：L1-5 需同部门 L7 审批，L6-12 自动通过
func (f *fixture) createITForm(t *testing.T) *FormMaster {
	t.Helper()
	ctx := context.Background()
	form, err := f.templates.Create(ctx, &TemplateInput{
		FormType:   "IT",
		FormCode:   "IT-001",
		FormName:   "IT Service Request",
		FormStatus: FormStatusActive,
		Questions: []QuestionInput{
			{Name: "title", Label: "Title", Type: QuestionText, IsRequired: true, SortOrder: 1},
			{Name: "detail", Label: "Detail", Type: QuestionLongText, SortOrder: 2},
			{Name: "category", Label: "Category", Type: QuestionDropdown, IsRequired: true, SortOrder: 3,
				Options: []OptionInput{{Value: "hardware"}, {Value: "software"}}},
			{Name: "quantity", Label: "Quantity", Type: QuestionInt, SortOrder: 4},
		},
	}, "admin")
	require.NoError(t, err)

	_, err = f.rules.Create(ctx, &RuleInput{FormCode: "IT-001", LevelNo: 1, CreatorMin: 1, CreatorMax: 5,
		ApproveByType: org.ApproveByLevel, ApproveByValue: ptr(7), SameDepartment: true}, "admin")
	require.NoError(t, err)
	_, err = f.rules.Create(ctx, &RuleInput{FormCode: "IT-001", LevelNo: 1, CreatorMin: 6, CreatorMax: 12,
		ApproveByType: org.ApproveByAuto}, "admin")
	require.NoError(t, err)
	return form
}

// createHRForm HR-REQ：第一步 L6-8 负责部门审批，第二步 L10 负责部门审批
func (f *fixture) createHRForm(t *testing.T) *FormMaster {
	t.Helper()
	ctx := context.Background()
	form, err := f.templates.Create(ctx, &TemplateInput{
		FormType:   "HR",
		FormCode:   "HR-REQ",
		FormName:   "HR General Request",
		FormStatus: FormStatusActive,
		Questions: []QuestionInput{
			{Name: "subject", Label: "Subject", Type: QuestionText, IsRequired: true},
		},
	}, "admin")
	require.NoError(t, err)

	_, err = f.rules.Create(ctx, &RuleInput{FormCode: "HR-REQ", LevelNo: 1, CreatorMin: 1, CreatorMax: 8,
		ApproveByType: org.ApproveByLevelRange, ApproveByMin: ptr(6), ApproveByMax: ptr(8)}, "admin")
	require.NoError(t, err)
	_, err = f.rules.Create(ctx, &RuleInput{FormCode: "HR-REQ", LevelNo: 2, CreatorMin: 1, CreatorMax: 8,
		ApproveByType: org.ApproveByLevel, ApproveByValue: ptr(10)}, "admin")
	require.NoError(t, err)

	_, err = f.dir.AssignDepartments(ctx, "E007", []uint{2})
	require.NoError(t, err)
	_, err = f.dir.AssignDepartments(ctx, "H010", []uint{2})
	require.NoError(t, err)
	return form
}

func questionID(t *testing.T, form *FormMaster, name string) uint {
	t.Helper()
	for _, q := range form.Questions {
		if q.Name == name {
			return q.ID
		}
	}
	t.Fatalf("question %s not found", name)
	return 0
}

func requireBusinessError(t *testing.T, err error, code int, message string) {
	t.Helper()
	be, ok := common.AsBusinessError(err)
	require.True(t, ok, "expected business error, got %v", err)
	require.Equal(t, code, be.Code)
	if message != "" {
		require.Equal(t, message, be.Message)
	}
}
