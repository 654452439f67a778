package forms

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"incidentdesk/internal/audit"
	"incidentdesk/internal/common"
	"incidentdesk/internal/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrFormNotFound 模板不存在
var ErrFormNotFound = common.ErrNotFound("Form not found")

// OptionInput 选项输入
type OptionInput struct {
	Value     string `json:"value" yaml:"value" binding:"required"`
	Label     string `json:"label" yaml:"label"`
	Filter    string `json:"filter,omitempty" yaml:"filter"`
	SortOrder int    `json:"sort_order" yaml:"sort_order"`
}

// QuestionInput 题目输入
type QuestionInput struct {
	Name       string        `json:"name" yaml:"name" binding:"required"`
	Label      string        `json:"label" yaml:"label"`
	Type       string        `json:"type" yaml:"type" binding:"required"`
	IsRequired bool          `json:"required" yaml:"required"`
	SortOrder  int           `json:"sort_order" yaml:"sort_order"`
	Options    []OptionInput `json:"options,omitempty" yaml:"options"`
}

// TemplateInput 创建模板请求
type TemplateInput struct {
	FormType     string          `json:"form_type" yaml:"form_type" binding:"required"`
	FormCode     string          `json:"form_code" yaml:"form_code" binding:"required"`
	FormName     string          `json:"form_name" yaml:"form_name"`
	FormStatus   string          `json:"form_status" yaml:"form_status"`
	NeedApproval *bool           `json:"need_approval" yaml:"need_approval"`
	Questions    []QuestionInput `json:"questions" yaml:"questions"`
}

// TemplateFilter 模板列表过滤
type TemplateFilter struct {
	common.PaginationRequest
	FormStatus string `form:"status"`
	FormType   string `form:"form_type"`
}

// TemplateService 表单模板管理
type TemplateService struct {
	*common.BaseService
	audit  *audit.Recorder
	logger *zap.Logger
}

// NewTemplateService 创建模板服务
func NewTemplateService(db *gorm.DB, recorder *audit.Recorder, l *zap.Logger) *TemplateService {
	if l == nil {
		l = logger.L()
	}
	return &TemplateService{
		BaseService: common.NewBaseService(db),
		audit:       recorder,
		logger:      l,
	}
}

// Create 创建模板第一个版本；表单编码已存在时拒绝
func (s *TemplateService) Create(ctx context.Context, in *TemplateInput, actor string) (*FormMaster, error) {
	form, err := buildTemplate(in)
	if err != nil {
		return nil, err
	}
	form.CreatedBy = actor

	err = s.Transaction(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&FormMaster{}).Where("form_code = ?", in.FormCode).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return common.ErrInvalid("Form code already exists")
		}
		if err := tx.Create(form).Error; err != nil {
			return err
		}
		return s.record(ctx, tx, actor, audit.ActionCreate, form, nil)
	})
	if err != nil {
		return nil, wrapErr("创建表单模板失败", err)
	}

	s.logger.Info("表单模板已创建", zap.String("form_code", form.FormCode), zap.Int("questions", len(form.Questions)))
	return form, nil
}

// buildTemplate 校验输入并构造模板对象
func buildTemplate(in *TemplateInput) (*FormMaster, error) {
	status := in.FormStatus
	if status == "" {
		status = FormStatusDraft
	}
	if !isValidFormStatus(status) {
		return nil, common.ErrInvalid("Invalid form status: " + status)
	}
	needApproval := true
	if in.NeedApproval != nil {
		needApproval = *in.NeedApproval
	}

	form := &FormMaster{
		FormType:     in.FormType,
		FormCode:     in.FormCode,
		FormName:     in.FormName,
		FormStatus:   status,
		NeedApproval: needApproval,
		Version:      1,
		IsLatest:     true,
	}

	names := make(map[string]struct{}, len(in.Questions))
	for _, qi := range in.Questions {
		if !isValidQuestionType(qi.Type) {
			return nil, common.ErrInvalid(fmt.Sprintf("Invalid question type %q for %s", qi.Type, qi.Name))
		}
		if _, dup := names[qi.Name]; dup {
			return nil, common.ErrInvalid("Duplicate question name: " + qi.Name)
		}
		names[qi.Name] = struct{}{}

		q := FormQuestion{
			Name:       qi.Name,
			Label:      qi.Label,
			Type:       qi.Type,
			IsRequired: qi.IsRequired,
			SortOrder:  qi.SortOrder,
		}
		if q.Label == "" {
			q.Label = q.Name
		}
		if q.HasOptions() {
			if len(qi.Options) == 0 {
				return nil, common.ErrInvalid(q.Label + " requires options")
			}
			for _, oi := range qi.Options {
				q.Options = append(q.Options, FormQuestionOption{
					Value: oi.Value, Label: oi.Label, Filter: oi.Filter, SortOrder: oi.SortOrder,
				})
			}
		}
		form.Questions = append(form.Questions, q)
	}
	return form, nil
}

// Get 获取模板；version 为空时取最新版本
func (s *TemplateService) Get(ctx context.Context, formCode string, version *int) (*FormMaster, error) {
	return loadTemplate(s.DB.WithContext(ctx), formCode, version)
}

func loadTemplate(db *gorm.DB, formCode string, version *int) (*FormMaster, error) {
	query := db.Where("form_code = ?", formCode)
	if version != nil {
		query = query.Where("version = ?", *version)
	} else {
		query = query.Where("is_latest = ?", true)
	}

	var form FormMaster
	err := query.
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order, id") }).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order, id") }).
		Preload("Rules", func(db *gorm.DB) *gorm.DB { return db.Order("level_no, creator_min") }).
		First(&form).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFormNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询表单模板失败: %w", err)
	}
	return &form, nil
}

// List 列出各表单编码的最新版本
func (s *TemplateService) List(ctx context.Context, f TemplateFilter) ([]FormMaster, int64, error) {
	query := s.DB.Model(&FormMaster{}).Where("is_latest = ?", true)
	query = s.ApplyStatusFilter(query, "form_status", f.FormStatus)
	query = s.ApplyEqualFilter(query, "form_type", f.FormType)

	var forms []FormMaster
	total, err := s.FindPage(ctx, query.Order("form_code"), f.PaginationRequest, &forms)
	if err != nil {
		return nil, 0, err
	}
	return forms, total, nil
}

// CloneVersion 复制最新版本（题目、选项、规则）为新版本草稿，新版本成为最新
func (s *TemplateService) CloneVersion(ctx context.Context, formCode, actor string) (*FormMaster, error) {
	var clone *FormMaster
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		current, err := loadTemplate(tx, formCode, nil)
		if err != nil {
			return err
		}

		clone = &FormMaster{
			FormType:     current.FormType,
			FormCode:     current.FormCode,
			FormName:     current.FormName,
			FormStatus:   FormStatusDraft,
			NeedApproval: current.NeedApproval,
			Version:      current.Version + 1,
			IsLatest:     true,
			CreatedBy:    actor,
		}
		for _, q := range current.Questions {
			nq := FormQuestion{Name: q.Name, Label: q.Label, Type: q.Type, IsRequired: q.IsRequired, SortOrder: q.SortOrder}
			for _, o := range q.Options {
				nq.Options = append(nq.Options, FormQuestionOption{Value: o.Value, Label: o.Label, Filter: o.Filter, SortOrder: o.SortOrder})
			}
			clone.Questions = append(clone.Questions, nq)
		}
		for _, r := range current.Rules {
			r.ID = 0
			r.FormMasterID = 0
			clone.Rules = append(clone.Rules, r)
		}

		// 先撤销旧版本的 latest 标记，再插入新版本
		if err := tx.Model(&FormMaster{}).Where("id = ?", current.ID).Update("is_latest", false).Error; err != nil {
			return err
		}
		if err := tx.Create(clone).Error; err != nil {
			return err
		}
		return s.record(ctx, tx, actor, audit.ActionVersion, clone, map[string]any{"from_version": current.Version})
	})
	if err != nil {
		return nil, wrapErr("创建模板新版本失败", err)
	}

	s.logger.Info("表单模板新版本已创建", zap.String("form_code", formCode), zap.Int("version", clone.Version))
	return clone, nil
}

// Activate 启用指定版本，同一编码的其他启用版本改为停用
func (s *TemplateService) Activate(ctx context.Context, formCode string, version *int, actor string) (*FormMaster, error) {
	var form *FormMaster
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		form, err = loadTemplate(tx, formCode, version)
		if err != nil {
			return err
		}
		if err := tx.Model(&FormMaster{}).
			Where("form_code = ? AND form_status = ? AND id <> ?", formCode, FormStatusActive, form.ID).
			Update("form_status", FormStatusInactive).Error; err != nil {
			return err
		}
		if err := tx.Model(&FormMaster{}).Where("id = ?", form.ID).Update("form_status", FormStatusActive).Error; err != nil {
			return err
		}
		form.FormStatus = FormStatusActive
		return s.record(ctx, tx, actor, audit.ActionActivate, form, nil)
	})
	if err != nil {
		return nil, wrapErr("启用模板版本失败", err)
	}
	return form, nil
}

// SetStatus 修改最新版本的生命周期状态；启用走 Activate 以保证唯一启用版本
func (s *TemplateService) SetStatus(ctx context.Context, formCode, status, actor string) (*FormMaster, error) {
	if !isValidFormStatus(status) {
		return nil, common.ErrInvalid("Invalid form status: " + status)
	}
	if status == FormStatusActive {
		return s.Activate(ctx, formCode, nil, actor)
	}

	var form *FormMaster
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		form, err = loadTemplate(tx, formCode, nil)
		if err != nil {
			return err
		}
		if err := tx.Model(&FormMaster{}).Where("id = ?", form.ID).Update("form_status", status).Error; err != nil {
			return err
		}
		previous := form.FormStatus
		form.FormStatus = status
		return s.record(ctx, tx, actor, audit.ActionStatus, form, map[string]any{"from": previous, "to": status})
	})
	if err != nil {
		return nil, wrapErr("修改模板状态失败", err)
	}
	return form, nil
}

// CodeExists 表单编码是否已存在
func (s *TemplateService) CodeExists(ctx context.Context, formCode string) (bool, error) {
	return s.Exists(ctx, &FormMaster{}, "form_code = ?", formCode)
}

func (s *TemplateService) record(ctx context.Context, tx *gorm.DB, actor, action string, form *FormMaster, extra map[string]any) error {
	if s.audit == nil {
		return nil
	}
	details := map[string]any{"version": form.Version, "form_status": form.FormStatus}
	for k, v := range extra {
		details[k] = v
	}
	return s.audit.Record(ctx, tx, audit.Entry{
		Actor:      actor,
		Action:     action,
		Resource:   "form_master",
		ResourceID: form.FormCode,
		Details:    details,
	})
}

func isValidFormStatus(status string) bool {
	return slices.Contains([]string{FormStatusDraft, FormStatusActive, FormStatusArchived, FormStatusInactive}, status)
}

// wrapErr 业务错误原样返回，其余错误包装后返回
func wrapErr(msg string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := common.AsBusinessError(err); ok {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
