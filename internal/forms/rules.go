package forms

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"incidentdesk/internal/audit"
	"incidentdesk/internal/common"
	"incidentdesk/internal/logger"
	"incidentdesk/internal/org"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RuleInput 创建或修改审批规则
type RuleInput struct {
	FormCode       string `json:"form_code" yaml:"-"`
	LevelNo        int    `json:"level_no" yaml:"level_no" binding:"required,min=1"`
	CreatorMin     int    `json:"creator_min" yaml:"creator_min"`
	CreatorMax     int    `json:"creator_max" yaml:"creator_max"`
	ApproveByType  string `json:"approve_by_type" yaml:"approve_by_type" binding:"required"`
	ApproveByValue *int   `json:"approve_by_value,omitempty" yaml:"approve_by_value"`
	ApproveByMin   *int   `json:"approve_by_min,omitempty" yaml:"approve_by_min"`
	ApproveByMax   *int   `json:"approve_by_max,omitempty" yaml:"approve_by_max"`
	SameDepartment bool   `json:"same_department" yaml:"same_department"`
	IsActive       *bool  `json:"is_active,omitempty" yaml:"is_active"`
}

// validate 校验区间与类型相关字段
func (in *RuleInput) validate() error {
	if in.LevelNo < 1 {
		return common.ErrInvalid("level_no must be at least 1")
	}
	if in.CreatorMin > in.CreatorMax {
		return common.ErrInvalid("creator_min must not exceed creator_max")
	}
	switch in.ApproveByType {
	case org.ApproveByLevel:
		if in.ApproveByValue == nil {
			return common.ErrInvalid("approve_by_value is required for position_level")
		}
	case org.ApproveByLevelRange:
		if in.ApproveByMin == nil || in.ApproveByMax == nil {
			return common.ErrInvalid("approve_by_min and approve_by_max are required for position_level_range")
		}
		if *in.ApproveByMin > *in.ApproveByMax {
			return common.ErrInvalid("approve_by_min must not exceed approve_by_max")
		}
	case org.ApproveByAuto:
	default:
		return common.ErrInvalid("Invalid approve_by_type: " + in.ApproveByType)
	}
	return nil
}

func (in *RuleInput) apply(rule *ApprovalRule) {
	rule.LevelNo = in.LevelNo
	rule.CreatorMin = in.CreatorMin
	rule.CreatorMax = in.CreatorMax
	rule.ApproveByType = in.ApproveByType
	rule.ApproveByValue = in.ApproveByValue
	rule.ApproveByMin = in.ApproveByMin
	rule.ApproveByMax = in.ApproveByMax
	rule.SameDepartment = in.SameDepartment
	rule.IsActive = in.IsActive == nil || *in.IsActive
}

// RuleService 审批规则管理
type RuleService struct {
	*common.BaseService
	audit  *audit.Recorder
	logger *zap.Logger
}

// NewRuleService 创建规则服务
func NewRuleService(db *gorm.DB, recorder *audit.Recorder, l *zap.Logger) *RuleService {
	if l == nil {
		l = logger.L()
	}
	return &RuleService{BaseService: common.NewBaseService(db), audit: recorder, logger: l}
}

// ErrRuleNotFound 规则不存在
var ErrRuleNotFound = common.ErrNotFound("Rule not found")

// Create 为表单最新版本新增规则
func (s *RuleService) Create(ctx context.Context, in *RuleInput, actor string) (*ApprovalRule, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	rule := &ApprovalRule{}
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		var form FormMaster
		if err := tx.Where("form_code = ? AND is_latest = ?", in.FormCode, true).First(&form).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrFormNotFound
			}
			return err
		}
		rule.FormMasterID = form.ID
		in.apply(rule)

		if err := checkOverlap(tx, rule); err != nil {
			return err
		}
		if err := tx.Create(rule).Error; err != nil {
			return err
		}
		return s.record(ctx, tx, actor, audit.ActionCreate, rule)
	})
	if err != nil {
		return nil, wrapErr("创建审批规则失败", err)
	}
	return rule, nil
}

// List 表单最新版本的规则，按步骤排序
func (s *RuleService) List(ctx context.Context, formCode string) ([]ApprovalRule, error) {
	var form FormMaster
	err := s.DB.WithContext(ctx).Where("form_code = ? AND is_latest = ?", formCode, true).First(&form).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFormNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询表单模板失败: %w", err)
	}

	var rules []ApprovalRule
	if err := s.DB.WithContext(ctx).Where("form_master_id = ?", form.ID).
		Order("level_no, creator_min").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("查询审批规则失败: %w", err)
	}
	return rules, nil
}

// Update 修改规则
func (s *RuleService) Update(ctx context.Context, id uint, in *RuleInput, actor string) (*ApprovalRule, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var rule ApprovalRule
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&rule, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRuleNotFound
			}
			return err
		}
		in.apply(&rule)
		if err := checkOverlap(tx, &rule); err != nil {
			return err
		}
		if err := tx.Save(&rule).Error; err != nil {
			return err
		}
		return s.record(ctx, tx, actor, audit.ActionUpdate, &rule)
	})
	if err != nil {
		return nil, wrapErr("修改审批规则失败", err)
	}
	return &rule, nil
}

// Delete 删除规则
func (s *RuleService) Delete(ctx context.Context, id uint, actor string) error {
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		var rule ApprovalRule
		if err := tx.First(&rule, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRuleNotFound
			}
			return err
		}
		if err := tx.Delete(&rule).Error; err != nil {
			return err
		}
		return s.record(ctx, tx, actor, audit.ActionDelete, &rule)
	})
	return wrapErr("删除审批规则失败", err)
}

// checkOverlap 同一版本同一步骤的启用规则，申请人职级区间不得重叠
func checkOverlap(tx *gorm.DB, rule *ApprovalRule) error {
	if !rule.IsActive {
		return nil
	}
	var count int64
	err := tx.Model(&ApprovalRule{}).
		Where("form_master_id = ? AND level_no = ? AND is_active = ? AND id <> ?", rule.FormMasterID, rule.LevelNo, true, rule.ID).
		Where("creator_min <= ? AND creator_max >= ?", rule.CreatorMax, rule.CreatorMin).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return common.ErrConflict(fmt.Sprintf("Creator level band %d-%d overlaps an existing rule at level %d",
			rule.CreatorMin, rule.CreatorMax, rule.LevelNo))
	}
	return nil
}

func (s *RuleService) record(ctx context.Context, tx *gorm.DB, actor, action string, rule *ApprovalRule) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, tx, audit.Entry{
		Actor:      actor,
		Action:     action,
		Resource:   "form_approval_rule",
		ResourceID: strconv.FormatUint(uint64(rule.ID), 10),
		Details:    rule,
	})
}
