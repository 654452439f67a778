package forms

import (
	"context"
	"errors"
	"fmt"

	"incidentdesk/internal/org"

	"gorm.io/gorm"
)

// Resolver 审批规则解析：按表单版本、申请人职级与步骤选出规则并判定审批资格
type Resolver struct {
	db  *gorm.DB
	dir *org.Directory
}

// NewResolver 创建规则解析器
func NewResolver(db *gorm.DB, dir *org.Directory) *Resolver {
	return &Resolver{db: db, dir: dir}
}

// Resolve 取 (版本, 步骤) 下区间包含申请人职级的启用规则；无匹配返回 nil
func (r *Resolver) Resolve(ctx context.Context, tx *gorm.DB, formMasterID uint, creatorLevel, step int) (*ApprovalRule, error) {
	if tx == nil {
		tx = r.db
	}
	var rule ApprovalRule
	err := tx.WithContext(ctx).
		Where("form_master_id = ? AND level_no = ? AND is_active = ?", formMasterID, step, true).
		Where("creator_min <= ? AND creator_max >= ?", creatorLevel, creatorLevel).
		Order("id").
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询审批规则失败: %w", err)
	}
	return &rule, nil
}

// InitialApproval 计算提交时的审批状态与当前步骤
// 不需要审批、申请人无职级或无匹配规则时直接通过；首个匹配规则为 auto 时同样直接通过
func (r *Resolver) InitialApproval(ctx context.Context, tx *gorm.DB, form *FormMaster, creatorLevel *int) (string, *int, *ApprovalRule, error) {
	if !form.NeedApproval || creatorLevel == nil {
		return ApproveApproved, nil, nil, nil
	}
	if tx == nil {
		tx = r.db
	}

	var rule ApprovalRule
	err := tx.WithContext(ctx).
		Where("form_master_id = ? AND is_active = ?", form.ID, true).
		Where("creator_min <= ? AND creator_max >= ?", *creatorLevel, *creatorLevel).
		Order("level_no, id").
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ApproveApproved, nil, nil, nil
	}
	if err != nil {
		return "", nil, nil, fmt.Errorf("查询审批规则失败: %w", err)
	}
	if rule.ApproveByType == org.ApproveByAuto {
		return ApproveApproved, nil, nil, nil
	}
	step := rule.LevelNo
	return ApproveInProgress, &step, &rule, nil
}

// CanApprove 审批人是否满足规则
func (r *Resolver) CanApprove(ctx context.Context, tx *gorm.DB, rule *ApprovalRule, approver *org.User, approverLevel int, requester *org.User) (bool, error) {
	return r.dir.WithTx(tx).CanApprove(ctx, rule.Criteria(), approver, approverLevel, requester)
}
