package forms

import (
	"time"

	"incidentdesk/internal/org"
)

// 模板生命周期状态
const (
	FormStatusDraft    = "Draft"
	FormStatusActive   = "Active"
	FormStatusArchived = "Archived"
	FormStatusInactive = "Inactive"
)

// 题目类型
const (
	QuestionText        = "text"
	QuestionLongText    = "longtext"
	QuestionNumber      = "number"
	QuestionInt         = "int"
	QuestionDate        = "date"
	QuestionDateTime    = "datetime"
	QuestionCheckbox    = "checkbox"
	QuestionDropdown    = "dropdown"
	QuestionMultiSelect = "multiselect"
)

// 工作流状态，与审批状态相互独立
const (
	StatusOpen       = "Open"
	StatusInProgress = "In-Progress"
	StatusDone       = "Done"
	StatusBacklog    = "Backlog"
)

// 审批状态
const (
	ApproveInProgress = "In Progress"
	ApproveApproved   = "Approved"
	ApproveRejected   = "Rejected"
)

// 审批动作
const (
	ActionApproved = "APPROVED"
	ActionRejected = "REJECTED"
)

// FormMaster 表单模板，按 (form_code, version) 区分版本
type FormMaster struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	FormType     string    `gorm:"size:50" json:"form_type"`
	FormCode     string    `gorm:"size:50;not null;uniqueIndex:uk_form_code_version,priority:1;index:uk_form_latest,unique,where:is_latest = true;index:uk_form_active,unique,where:form_status = 'Active'" json:"form_code"`
	FormName     string    `gorm:"size:255" json:"form_name"`
	FormStatus   string    `gorm:"size:20;not null;default:Draft" json:"form_status"`
	NeedApproval bool      `gorm:"not null" json:"need_approval"`
	Version      int       `gorm:"not null;default:1;uniqueIndex:uk_form_code_version,priority:2" json:"version"`
	IsLatest     bool      `gorm:"not null" json:"is_latest"`
	CreatedBy    string    `gorm:"size:50" json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Questions []FormQuestion `gorm:"foreignKey:FormMasterID;constraint:OnDelete:CASCADE" json:"questions,omitempty"`
	Rules     []ApprovalRule `gorm:"foreignKey:FormMasterID;constraint:OnDelete:CASCADE" json:"rules,omitempty"`
}

// TableName 指定表名
func (FormMaster) TableName() string { return "form_masters" }

// FormQuestion 模板题目
type FormQuestion struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	FormMasterID uint   `gorm:"not null;index" json:"form_master_id"`
	Name         string `gorm:"size:100;not null" json:"name"`
	Label        string `gorm:"size:255" json:"label"`
	Type         string `gorm:"size:20;not null" json:"type"`
	IsRequired   bool   `gorm:"not null;default:false" json:"required"`
	SortOrder    int    `gorm:"not null;default:0" json:"sort_order"`

	Options []FormQuestionOption `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"options,omitempty"`
}

// TableName 指定表名
func (FormQuestion) TableName() string { return "form_questions" }

// HasOptions 选择题才有选项
func (q *FormQuestion) HasOptions() bool {
	return q.Type == QuestionDropdown || q.Type == QuestionMultiSelect
}

// FormQuestionOption 选择题选项
type FormQuestionOption struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	QuestionID uint   `gorm:"not null;index" json:"question_id"`
	Value      string `gorm:"size:255;not null" json:"value"`
	Label      string `gorm:"size:255" json:"label"`
	Filter     string `gorm:"size:255" json:"filter,omitempty"`
	SortOrder  int    `gorm:"not null;default:0" json:"sort_order"`
}

// TableName 指定表名
func (FormQuestionOption) TableName() string { return "form_question_options" }

// ApprovalRule 审批规则：某一步骤对某一申请人职级区间的审批要求
type ApprovalRule struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	FormMasterID   uint      `gorm:"not null;index:idx_rule_form_level,priority:1" json:"form_master_id"`
	LevelNo        int       `gorm:"not null;index:idx_rule_form_level,priority:2" json:"level_no"`
	CreatorMin     int       `gorm:"not null" json:"creator_min"`
	CreatorMax     int       `gorm:"not null" json:"creator_max"`
	ApproveByType  string    `gorm:"size:30;not null" json:"approve_by_type"`
	ApproveByValue *int      `json:"approve_by_value,omitempty"`
	ApproveByMin   *int      `json:"approve_by_min,omitempty"`
	ApproveByMax   *int      `json:"approve_by_max,omitempty"`
	SameDepartment bool      `gorm:"not null;default:false" json:"same_department"`
	IsActive       bool      `gorm:"not null" json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName 指定表名
func (ApprovalRule) TableName() string { return "form_approval_rules" }

// CoversCreator 申请人职级是否落在规则区间内
func (r *ApprovalRule) CoversCreator(level int) bool {
	return r.CreatorMin <= level && level <= r.CreatorMax
}

// Criteria 转换为审批人资格要求
func (r *ApprovalRule) Criteria() org.ApproverCriteria {
	return org.ApproverCriteria{
		Type:           r.ApproveByType,
		Value:          r.ApproveByValue,
		Min:            r.ApproveByMin,
		Max:            r.ApproveByMax,
		SameDepartment: r.SameDepartment,
	}
}

// FormSubmission 表单提交实例
type FormSubmission struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	FormMasterID         uint      `gorm:"not null;index" json:"form_master_id"`
	FormID               string    `gorm:"size:60;not null;uniqueIndex" json:"form_id"`
	CreatedBy            string    `gorm:"size:50;not null;index" json:"created_by"`
	UpdatedBy            string    `gorm:"size:50" json:"updated_by"`
	Status               string    `gorm:"size:20;not null;default:Open" json:"status"`
	StatusApprove        string    `gorm:"size:20;not null;index" json:"status_approve"`
	CurrentApprovalLevel *int      `json:"current_approval_level"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`

	Form         *FormMaster       `gorm:"foreignKey:FormMasterID" json:"form,omitempty"`
	Values       []SubmissionValue `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE" json:"values,omitempty"`
	ApprovalLogs []ApprovalLog     `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE" json:"approval_logs,omitempty"`
	Logs         []SubmissionLog   `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE" json:"logs,omitempty"`
}

// TableName 指定表名
func (FormSubmission) TableName() string { return "form_submissions" }

// SubmissionValue 单题答案
type SubmissionValue struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	SubmissionID uint       `gorm:"not null;uniqueIndex:uk_submission_question,priority:1" json:"submission_id"`
	QuestionID   uint       `gorm:"not null;uniqueIndex:uk_submission_question,priority:2" json:"question_id"`
	ValueText    *string    `json:"value_text"`
	ValueNumber  *float64   `json:"value_number"`
	ValueDate    *time.Time `json:"value_date"`
	ValueBoolean *bool      `json:"value_boolean"`

	Question *FormQuestion `gorm:"foreignKey:QuestionID" json:"question,omitempty"`
}

// TableName 指定表名
func (SubmissionValue) TableName() string { return "form_submission_values" }

// ApprovalLog 审批记录，只追加
type ApprovalLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;index" json:"submission_id"`
	LevelNo      int       `gorm:"not null" json:"level_no"`
	Action       string    `gorm:"size:20;not null" json:"action"`
	ActionBy     string    `gorm:"size:50;not null" json:"action_by_employee_id"`
	ActionAt     time.Time `gorm:"not null" json:"action_at"`
	Remark       string    `gorm:"type:text" json:"remark,omitempty"`
}

// TableName 指定表名
func (ApprovalLog) TableName() string { return "form_approval_logs" }

// SubmissionLog 提交内容变更记录，只追加
type SubmissionLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;index" json:"submission_id"`
	Field        string    `gorm:"size:100;not null" json:"field"`
	OldValue     string    `gorm:"type:text" json:"old_value"`
	NewValue     string    `gorm:"type:text" json:"new_value"`
	Diff         string    `gorm:"type:text" json:"diff,omitempty"`
	ChangedBy    string    `gorm:"size:50" json:"changed_by"`
	ChangedAt    time.Time `gorm:"not null" json:"changed_at"`
}

// TableName 指定表名
func (SubmissionLog) TableName() string { return "form_submission_logs" }

// Models 需要迁移的模型
func Models() []any {
	return []any{
		&FormMaster{}, &FormQuestion{}, &FormQuestionOption{}, &ApprovalRule{},
		&FormSubmission{}, &SubmissionValue{}, &ApprovalLog{}, &SubmissionLog{},
	}
}
