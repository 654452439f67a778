package forms

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"incidentdesk/internal/common"
	"incidentdesk/internal/logger"
	"incidentdesk/internal/metrics"
	"incidentdesk/internal/org"
	"incidentdesk/internal/sequence"
	"incidentdesk/internal/worker/tasks"

	"github.com/pmezard/go-difflib/difflib"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("incidentdesk/forms")

// 引擎返回的业务错误
var (
	ErrSubmissionNotFound = common.ErrNotFound("Submission not found")
	ErrNotApprovable      = common.ErrInvalid("Submission not in approvable state")
	ErrRuleMissing        = common.ErrInvalid("Approval rule not found")
	ErrSubmissionDone     = common.ErrInvalid("Cannot edit a completed form")
)

// NotificationQueue 提交后投递通知任务
type NotificationQueue interface {
	EnqueueFormNotification(ctx context.Context, payload tasks.FormNotificationPayload) error
}

// defaultEnqueueTimeout 通知投递的等待上限，超时只记录
const defaultEnqueueTimeout = 2 * time.Second

// SubmitInput 提交表单请求
type SubmitInput struct {
	FormCode  string        `json:"form_code" binding:"required"`
	CreatedBy string        `json:"created_by" binding:"required"`
	UpdatedBy string        `json:"updated_by,omitempty"`
	Values    []AnswerInput `json:"values"`
}

// SubmitResult 提交结果
type SubmitResult struct {
	SubmissionID         uint   `json:"submission_id"`
	FormID               string `json:"form_id"`
	Status               string `json:"status"`
	StatusApprove        string `json:"status_approve"`
	CurrentApprovalLevel *int   `json:"current_approval_level"`
}

// DecisionResult 审批动作结果
type DecisionResult struct {
	FormID       string `json:"form_id"`
	Status       string `json:"status"`
	CurrentLevel *int   `json:"current_level"`
}

// SubmissionFilter 提交列表过滤
type SubmissionFilter struct {
	common.PaginationRequest
	common.DateRange
	FormCode      string `form:"form_code"`
	Status        string `form:"status"`
	StatusApprove string `form:"status_approve"`
	CreatedBy     string `form:"created_by"`
}

// PendingApproval 待当前审批人处理的提交
type PendingApproval struct {
	SubmissionID uint      `json:"submission_id"`
	FormID       string    `json:"form_id"`
	FormCode     string    `json:"form_code"`
	FormName     string    `json:"form_name"`
	CurrentLevel *int      `json:"current_level"`
	Status       string    `json:"status"`
	StatusApp    string    `json:"status_approve"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	Firstname    string    `json:"firstname"`
	Lastname     string    `json:"lastname"`
	Email        string    `json:"email"`
	ImageURL     string    `json:"image_url"`
}

// Engine 表单提交与多级审批
type Engine struct {
	*common.BaseService
	dir            *org.Directory
	resolver       *Resolver
	seq            *sequence.Generator
	queue          NotificationQueue
	enqueueTimeout time.Duration
	bus            *EventBus
	logger         *zap.Logger
	now            func() time.Time
}

// EngineOption 自定义配置
type EngineOption func(*Engine)

// WithQueue 注入通知队列
func WithQueue(q NotificationQueue) EngineOption {
	return func(e *Engine) { e.queue = q }
}

// WithEnqueueTimeout 设置通知投递超时
func WithEnqueueTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.enqueueTimeout = d
		}
	}
}

// WithEventBus 注入事件总线
func WithEventBus(bus *EventBus) EngineOption {
	return func(e *Engine) { e.bus = bus }
}

// WithEngineLogger 注入日志
func WithEngineLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock 注入时钟
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine 创建审批引擎
func NewEngine(db *gorm.DB, dir *org.Directory, resolver *Resolver, seq *sequence.Generator, opts ...EngineOption) *Engine {
	e := &Engine{
		BaseService:    common.NewBaseService(db),
		dir:            dir,
		resolver:       resolver,
		seq:            seq,
		logger:         logger.L(),
		now:            time.Now,
		enqueueTimeout: defaultEnqueueTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// ============================================================================
// 提交
// ============================================================================

// Submit 校验答案、分配编号、计算初始审批状态，提交与答案在同一事务内写入
func (e *Engine) Submit(ctx context.Context, in *SubmitInput) (*SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "forms.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("form.code", in.FormCode), attribute.String("form.created_by", in.CreatedBy))

	form, err := e.activeTemplate(ctx, in.FormCode)
	if err != nil {
		return nil, traceErr(span, err)
	}
	creator, err := e.dir.UserByEmployeeID(ctx, in.CreatedBy)
	if err != nil {
		return nil, traceErr(span, err)
	}
	values, err := validateAnswers(form.Questions, in.Values)
	if err != nil {
		return nil, traceErr(span, err)
	}
	creatorLevel, err := e.dir.LevelOf(ctx, creator)
	if err != nil {
		return nil, traceErr(span, err)
	}

	updatedBy := in.UpdatedBy
	if updatedBy == "" {
		updatedBy = in.CreatedBy
	}
	sub := &FormSubmission{
		FormMasterID: form.ID,
		CreatedBy:    in.CreatedBy,
		UpdatedBy:    updatedBy,
		Status:       StatusOpen,
		Values:       values,
	}

	err = e.Transaction(ctx, func(tx *gorm.DB) error {
		formID, err := e.seq.FormID(ctx, tx, form.FormCode, e.now())
		if err != nil {
			return err
		}
		status, step, _, err := e.resolver.InitialApproval(ctx, tx, form, creatorLevel)
		if err != nil {
			return err
		}
		sub.FormID = formID
		sub.StatusApprove = status
		sub.CurrentApprovalLevel = step
		return tx.Create(sub).Error
	})
	if err != nil {
		return nil, traceErr(span, wrapErr("提交表单失败", err))
	}

	span.SetAttributes(attribute.String("form.id", sub.FormID), attribute.String("form.status_approve", sub.StatusApprove))
	metrics.FormSubmissionsTotal.WithLabelValues(form.FormCode, sub.StatusApprove).Inc()
	if sub.StatusApprove == ApproveInProgress {
		metrics.ApprovalPendingGauge.WithLabelValues(form.FormCode).Inc()
	}
	e.logger.Info("表单已提交",
		zap.String("form_id", sub.FormID),
		zap.String("created_by", sub.CreatedBy),
		zap.String("status_approve", sub.StatusApprove),
	)
	e.afterCommit(ctx, sub, EventSubmitted, tasks.EventSubmitted, in.CreatedBy, "")

	return &SubmitResult{
		SubmissionID:         sub.ID,
		FormID:               sub.FormID,
		Status:               sub.Status,
		StatusApprove:        sub.StatusApprove,
		CurrentApprovalLevel: sub.CurrentApprovalLevel,
	}, nil
}

// activeTemplate 当前启用版本；编码存在但无启用版本时返回 400
func (e *Engine) activeTemplate(ctx context.Context, formCode string) (*FormMaster, error) {
	var form FormMaster
	err := e.DB.WithContext(ctx).
		Where("form_code = ? AND form_status = ?", formCode, FormStatusActive).
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order, id") }).
		Preload("Questions.Options").
		First(&form).Error
	if err == nil {
		return &form, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询表单模板失败: %w", err)
	}
	exists, err := e.Exists(ctx, &FormMaster{}, "form_code = ?", formCode)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, common.ErrInvalid("Form is not active")
	}
	return nil, ErrFormNotFound
}

// ============================================================================
// 审批
// ============================================================================

// Approve 通过当前步骤；存在下一步骤规则时前进一步，否则审批完成
func (e *Engine) Approve(ctx context.Context, formID, approverID, remark string) (*DecisionResult, error) {
	return e.decide(ctx, formID, approverID, remark, ActionApproved)
}

// Reject 驳回，审批状态终止为 Rejected
func (e *Engine) Reject(ctx context.Context, formID, approverID, remark string) (*DecisionResult, error) {
	return e.decide(ctx, formID, approverID, remark, ActionRejected)
}

func (e *Engine) decide(ctx context.Context, formID, approverID, remark, action string) (*DecisionResult, error) {
	ctx, span := tracer.Start(ctx, "forms.Decide")
	defer span.End()
	span.SetAttributes(
		attribute.String("form.id", formID),
		attribute.String("approval.action", action),
		attribute.String("approval.approver", approverID),
	)

	var (
		sub   FormSubmission
		event string
	)
	err := e.Transaction(ctx, func(tx *gorm.DB) error {
		// 行锁保证同一步骤只被处理一次
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("form_id = ?", formID).First(&sub).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSubmissionNotFound
			}
			return err
		}
		if sub.StatusApprove != ApproveInProgress || sub.CurrentApprovalLevel == nil {
			return ErrNotApprovable
		}
		step := *sub.CurrentApprovalLevel

		dir := e.dir.WithTx(tx)
		requester, err := dir.UserByEmployeeID(ctx, sub.CreatedBy)
		if err != nil {
			return err
		}
		approver, err := dir.UserByEmployeeID(ctx, approverID)
		if err != nil {
			return err
		}
		approverLevel, err := dir.LevelOf(ctx, approver)
		if err != nil {
			return err
		}
		if approverLevel == nil {
			return common.ErrForbidden("Approver has no position level")
		}
		requesterLevel, err := dir.LevelOf(ctx, requester)
		if err != nil {
			return err
		}
		if requesterLevel == nil {
			return common.ErrInvalid("Requester position not found")
		}

		rule, err := e.resolver.Resolve(ctx, tx, sub.FormMasterID, *requesterLevel, step)
		if err != nil {
			return err
		}
		if rule == nil {
			return ErrRuleMissing
		}
		ok, err := e.resolver.CanApprove(ctx, tx, rule, approver, *approverLevel, requester)
		if err != nil {
			return err
		}
		if !ok {
			if action == ActionRejected {
				return common.ErrForbidden("Not authorized to reject")
			}
			return common.ErrForbidden("Not authorized to approve")
		}

		now := e.now().UTC()
		if err := tx.Create(&ApprovalLog{
			SubmissionID: sub.ID,
			LevelNo:      step,
			Action:       action,
			ActionBy:     approver.EmployeeID,
			ActionAt:     now,
			Remark:       remark,
		}).Error; err != nil {
			return err
		}

		updates := map[string]any{"updated_at": now}
		switch action {
		case ActionRejected:
			sub.StatusApprove = ApproveRejected
			event = EventRejected
		default:
			next, err := e.resolver.Resolve(ctx, tx, sub.FormMasterID, *requesterLevel, step+1)
			if err != nil {
				return err
			}
			if next != nil {
				nextStep := step + 1
				sub.CurrentApprovalLevel = &nextStep
				updates["current_approval_level"] = nextStep
				event = EventStepApproved
			} else {
				sub.StatusApprove = ApproveApproved
				event = EventApproved
			}
		}
		updates["status_approve"] = sub.StatusApprove
		return tx.Model(&FormSubmission{}).Where("id = ?", sub.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, traceErr(span, wrapErr("审批失败", err))
	}

	formCode := e.formCode(ctx, sub.FormMasterID)
	metrics.ApprovalDecisionsTotal.WithLabelValues(formCode, action, sub.StatusApprove).Inc()
	if sub.StatusApprove != ApproveInProgress {
		metrics.ApprovalPendingGauge.WithLabelValues(formCode).Dec()
	}
	e.logger.Info("审批动作已记录",
		zap.String("form_id", sub.FormID),
		zap.String("action", action),
		zap.String("approver", approverID),
		zap.String("status_approve", sub.StatusApprove),
	)

	var notify string
	switch event {
	case EventApproved:
		notify = tasks.EventApproved
	case EventRejected:
		notify = tasks.EventRejected
	}
	e.afterCommit(ctx, &sub, event, notify, approverID, remark)

	return &DecisionResult{FormID: sub.FormID, Status: sub.StatusApprove, CurrentLevel: sub.CurrentApprovalLevel}, nil
}

func (e *Engine) formCode(ctx context.Context, formMasterID uint) string {
	var code string
	if err := e.DB.WithContext(ctx).Model(&FormMaster{}).Where("id = ?", formMasterID).Pluck("form_code", &code).Error; err != nil {
		return ""
	}
	return code
}

// ============================================================================
// 工作流状态与内容修改
// ============================================================================

// UpdateStatus 修改工作流状态；状态变化写入变更记录，进入 Done 时发送完成通知
func (e *Engine) UpdateStatus(ctx context.Context, formID, newStatus, actor string) (*FormSubmission, error) {
	if !slices.Contains([]string{StatusOpen, StatusInProgress, StatusDone, StatusBacklog}, newStatus) {
		return nil, common.ErrInvalid("Invalid status: " + newStatus)
	}

	var (
		sub     FormSubmission
		changed bool
	)
	err := e.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("form_id = ?", formID).First(&sub).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSubmissionNotFound
			}
			return err
		}
		if sub.Status == newStatus {
			return nil
		}
		if sub.Status == StatusDone {
			return common.ErrInvalid("Submission is already done")
		}

		now := e.now().UTC()
		if err := tx.Create(&SubmissionLog{
			SubmissionID: sub.ID,
			Field:        "status",
			OldValue:     sub.Status,
			NewValue:     newStatus,
			ChangedBy:    actor,
			ChangedAt:    now,
		}).Error; err != nil {
			return err
		}
		if err := tx.Model(&FormSubmission{}).Where("id = ?", sub.ID).
			Updates(map[string]any{"status": newStatus, "updated_by": actor, "updated_at": now}).Error; err != nil {
			return err
		}
		sub.Status = newStatus
		sub.UpdatedBy = actor
		changed = true
		return nil
	})
	if err != nil {
		return nil, wrapErr("修改提交状态失败", err)
	}

	if changed {
		notify := ""
		if newStatus == StatusDone {
			notify = tasks.EventDone
		}
		e.afterCommit(ctx, &sub, EventStatusChanged, notify, actor, "")
	}
	return &sub, nil
}

// UpdateDetails 修改答案；已完成的提交不可修改。变化的字段逐一写入变更记录
func (e *Engine) UpdateDetails(ctx context.Context, formID string, answers []AnswerInput, actor string) (*FormSubmission, error) {
	var head FormSubmission
	err := e.DB.WithContext(ctx).Select("id", "form_master_id", "status").
		Where("form_id = ?", formID).First(&head).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询提交失败: %w", err)
	}
	if head.Status == StatusDone {
		return nil, ErrSubmissionDone
	}

	var questions []FormQuestion
	if err := e.DB.WithContext(ctx).Where("form_master_id = ?", head.FormMasterID).
		Preload("Options").Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("查询题目失败: %w", err)
	}
	byID := make(map[uint]*FormQuestion, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	updates := make([]SubmissionValue, 0, len(answers))
	seen := make(map[uint]struct{}, len(answers))
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			return nil, common.ErrInvalid(fmt.Sprintf("Invalid question_id %d", a.QuestionID))
		}
		if _, dup := seen[a.QuestionID]; dup {
			return nil, common.ErrInvalid(fmt.Sprintf("Duplicate question_id %d", a.QuestionID))
		}
		seen[a.QuestionID] = struct{}{}
		v, err := convertAnswer(q, a)
		if err != nil {
			return nil, err
		}
		updates = append(updates, v)
	}

	err = e.Transaction(ctx, func(tx *gorm.DB) error {
		// 加锁后重新检查状态，避免与并发的 Done 交错
		var sub FormSubmission
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", head.ID).First(&sub).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSubmissionNotFound
			}
			return err
		}
		if sub.Status == StatusDone {
			return ErrSubmissionDone
		}

		var values []SubmissionValue
		if err := tx.Where("submission_id = ?", sub.ID).Find(&values).Error; err != nil {
			return err
		}
		existing := make(map[uint]*SubmissionValue, len(values))
		for i := range values {
			existing[values[i].QuestionID] = &values[i]
		}

		now := e.now().UTC()
		for i := range updates {
			nv := &updates[i]
			q := byID[nv.QuestionID]
			oldText := ""
			if old, ok := existing[nv.QuestionID]; ok {
				oldText = old.Display()
				if oldText == nv.Display() {
					continue
				}
				if err := tx.Model(&SubmissionValue{}).Where("id = ?", old.ID).Updates(map[string]any{
					"value_text":    nv.ValueText,
					"value_number":  nv.ValueNumber,
					"value_date":    nv.ValueDate,
					"value_boolean": nv.ValueBoolean,
				}).Error; err != nil {
					return err
				}
				nv.ID = old.ID
				nv.SubmissionID = sub.ID
			} else {
				nv.SubmissionID = sub.ID
				if err := tx.Create(nv).Error; err != nil {
					return err
				}
			}
			existing[nv.QuestionID] = nv

			entry := SubmissionLog{
				SubmissionID: sub.ID,
				Field:        q.Name,
				OldValue:     oldText,
				NewValue:     nv.Display(),
				ChangedBy:    actor,
				ChangedAt:    now,
			}
			if q.Type == QuestionLongText {
				entry.Diff = textDiff(entry.OldValue, entry.NewValue)
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		}
		return tx.Model(&FormSubmission{}).Where("id = ?", sub.ID).
			Updates(map[string]any{"updated_by": actor, "updated_at": now}).Error
	})
	if err != nil {
		return nil, wrapErr("修改提交内容失败", err)
	}
	return e.Get(ctx, formID)
}

// textDiff 长文本的统一 diff
func textDiff(before, after string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "before",
		ToFile:   "after",
		Context:  1,
	})
	if err != nil {
		return ""
	}
	return diff
}

// ============================================================================
// 查询
// ============================================================================

// Get 完整提交：答案、审批记录与变更记录
func (e *Engine) Get(ctx context.Context, formID string) (*FormSubmission, error) {
	var sub FormSubmission
	err := e.DB.WithContext(ctx).Where("form_id = ?", formID).
		Preload("Form").
		Preload("Values", func(db *gorm.DB) *gorm.DB { return db.Order("question_id") }).
		Preload("Values.Question").
		Preload("ApprovalLogs", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Logs", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询提交失败: %w", err)
	}
	return &sub, nil
}

// List 分页查询提交
func (e *Engine) List(ctx context.Context, f SubmissionFilter) ([]FormSubmission, int64, error) {
	query := e.DB.Model(&FormSubmission{})
	if f.FormCode != "" {
		query = query.Where("form_master_id IN (?)",
			e.DB.Model(&FormMaster{}).Select("id").Where("form_code = ?", f.FormCode))
	}
	query = e.ApplyStatusFilter(query, "status", f.Status)
	query = e.ApplyStatusFilter(query, "status_approve", f.StatusApprove)
	query = e.ApplyEqualFilter(query, "created_by", f.CreatedBy)
	query = e.ApplyDateRangeFilter(query, "created_at", &f.DateRange)

	var subs []FormSubmission
	total, err := e.FindPage(ctx, query.Preload("Form").Order("id DESC"), f.PaginationRequest, &subs)
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

// PendingApprovals 当前步骤规则由该员工满足的全部审批中提交
func (e *Engine) PendingApprovals(ctx context.Context, employeeID string) ([]PendingApproval, error) {
	result := []PendingApproval{}

	approver, err := e.dir.UserByEmployeeID(ctx, employeeID)
	if err != nil {
		if be, ok := common.AsBusinessError(err); ok && be.Code == common.CodeNotFound {
			return result, nil
		}
		return nil, err
	}
	approverLevel, err := e.dir.LevelOf(ctx, approver)
	if err != nil || approverLevel == nil {
		return result, err
	}

	var subs []FormSubmission
	if err := e.DB.WithContext(ctx).
		Where("status_approve = ? AND current_approval_level IS NOT NULL", ApproveInProgress).
		Preload("Form").Order("id").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("查询待审批提交失败: %w", err)
	}

	creatorIDs := make([]string, 0, len(subs))
	for _, s := range subs {
		creatorIDs = append(creatorIDs, s.CreatedBy)
	}
	requesters, err := e.dir.UsersByEmployeeIDs(ctx, creatorIDs)
	if err != nil {
		return nil, err
	}

	levels := make(map[string]*int, len(requesters))
	for _, s := range subs {
		requester, ok := requesters[s.CreatedBy]
		if !ok {
			continue
		}
		level, cached := levels[s.CreatedBy]
		if !cached {
			if level, err = e.dir.LevelOf(ctx, requester); err != nil {
				return nil, err
			}
			levels[s.CreatedBy] = level
		}
		if level == nil {
			continue
		}

		rule, err := e.resolver.Resolve(ctx, nil, s.FormMasterID, *level, *s.CurrentApprovalLevel)
		if err != nil {
			return nil, err
		}
		if rule == nil {
			continue
		}
		ok, err = e.resolver.CanApprove(ctx, nil, rule, approver, *approverLevel, requester)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		item := PendingApproval{
			SubmissionID: s.ID,
			FormID:       s.FormID,
			CurrentLevel: s.CurrentApprovalLevel,
			Status:       s.Status,
			StatusApp:    s.StatusApprove,
			CreatedBy:    s.CreatedBy,
			CreatedAt:    s.CreatedAt,
			Firstname:    requester.Firstname,
			Lastname:     requester.Lastname,
			Email:        requester.Email,
			ImageURL:     requester.ImageURL,
		}
		if s.Form != nil {
			item.FormCode = s.Form.FormCode
			item.FormName = s.Form.FormName
		}
		result = append(result, item)
	}
	return result, nil
}

// ============================================================================
// 提交后副作用
// ============================================================================

// afterCommit 事务提交后发布事件并投递通知任务，失败只记录不返回
func (e *Engine) afterCommit(ctx context.Context, sub *FormSubmission, event, notify, actor, remark string) {
	e.bus.Publish(SubmissionEvent{
		FormID:        sub.FormID,
		Type:          event,
		Status:        sub.Status,
		StatusApprove: sub.StatusApprove,
		CurrentLevel:  sub.CurrentApprovalLevel,
		Actor:         actor,
		Remark:        remark,
		OccurredAt:    e.now().UTC(),
	})

	if notify == "" || e.queue == nil {
		return
	}
	// 请求结束不取消投递，但等待有上限
	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.enqueueTimeout)
	defer cancel()
	err := e.queue.EnqueueFormNotification(enqueueCtx, tasks.FormNotificationPayload{
		Event:        notify,
		SubmissionID: sub.ID,
		FormID:       sub.FormID,
		ActorID:      actor,
		Remark:       remark,
	})
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(notify, "enqueue_failed").Inc()
		e.logger.Warn("通知任务投递失败",
			zap.String("request_id", logger.GetRequestID(ctx)),
			zap.String("form_id", sub.FormID),
			zap.String("event", notify),
			zap.Error(err),
		)
		return
	}
	metrics.NotificationsTotal.WithLabelValues(notify, "queued").Inc()
}

func traceErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
