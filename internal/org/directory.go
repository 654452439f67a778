package org

import (
	"context"
	"errors"
	"fmt"
	"time"

	"incidentdesk/internal/common"
	"incidentdesk/internal/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Directory 组织数据访问：员工、职级、部门与审批人负责部门
type Directory struct {
	*common.BaseService
	logger *zap.Logger
}

// Option 配置项
type Option func(*Directory)

// WithLogger 注入日志
func WithLogger(l *zap.Logger) Option {
	return func(d *Directory) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDirectory 创建组织目录服务
func NewDirectory(db *gorm.DB, opts ...Option) *Directory {
	d := &Directory{
		BaseService: common.NewBaseService(db),
		logger:      logger.L(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithTx 返回绑定到事务的目录
func (d *Directory) WithTx(tx *gorm.DB) *Directory {
	if tx == nil {
		return d
	}
	return &Directory{BaseService: common.NewBaseService(tx), logger: d.logger}
}

// ErrUserNotFound 员工不存在
var ErrUserNotFound = common.ErrNotFound("User not found")

// UserByEmployeeID 按员工编号查询
func (d *Directory) UserByEmployeeID(ctx context.Context, employeeID string) (*User, error) {
	return d.findUser(ctx, "employee_id = ?", employeeID)
}

// UserByUsername 按用户名查询
func (d *Directory) UserByUsername(ctx context.Context, username string) (*User, error) {
	return d.findUser(ctx, "username = ?", username)
}

// UserByEmail 按邮箱查询
func (d *Directory) UserByEmail(ctx context.Context, email string) (*User, error) {
	return d.findUser(ctx, "email = ?", email)
}

func (d *Directory) findUser(ctx context.Context, cond string, arg any) (*User, error) {
	var user User
	if err := d.DB.WithContext(ctx).Where(cond, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("查询员工失败: %w", err)
	}
	return &user, nil
}

// UsersByEmployeeIDs 批量查询员工，按员工编号索引
func (d *Directory) UsersByEmployeeIDs(ctx context.Context, employeeIDs []string) (map[string]*User, error) {
	result := make(map[string]*User, len(employeeIDs))
	if len(employeeIDs) == 0 {
		return result, nil
	}
	var users []User
	if err := d.DB.WithContext(ctx).Where("employee_id IN ?", employeeIDs).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("查询员工失败: %w", err)
	}
	for i := range users {
		result[users[i].EmployeeID] = &users[i]
	}
	return result, nil
}

// CreateUser 新建员工账号
func (d *Directory) CreateUser(ctx context.Context, user *User) error {
	if err := d.DB.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return common.ErrInvalid("Username or employee ID already exists")
		}
		return fmt.Errorf("创建员工失败: %w", err)
	}
	return nil
}

// TouchLastLogin 记录最近登录时间
func (d *Directory) TouchLastLogin(ctx context.Context, userID uint, at time.Time) error {
	return d.DB.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Update("last_login", at).Error
}

// LevelOf 员工职级，未分配职位时返回 nil
func (d *Directory) LevelOf(ctx context.Context, user *User) (*int, error) {
	if user == nil || user.PositionID == nil {
		return nil, nil
	}
	var pos Position
	err := d.DB.WithContext(ctx).First(&pos, *user.PositionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询职位失败: %w", err)
	}
	if pos.PositionLevelID == nil {
		return nil, nil
	}
	level := int(*pos.PositionLevelID)
	return &level, nil
}

// CanHandleDepartment 审批人是否负责该部门
func (d *Directory) CanHandleDepartment(ctx context.Context, employeeID string, departmentID *uint) (bool, error) {
	if departmentID == nil {
		return false, nil
	}
	return d.Exists(ctx, &ApproverDepartment{},
		"employee_id = ? AND department_id = ? AND is_active = ?", employeeID, *departmentID, true)
}

// CanApprove 审批人是否满足某一步骤的要求
// 同部门模式比较双方部门；否则查审批人负责部门映射
func (d *Directory) CanApprove(ctx context.Context, criteria ApproverCriteria, approver *User, approverLevel int, requester *User) (bool, error) {
	if !criteria.MatchesLevel(approverLevel) {
		return false, nil
	}
	if criteria.SameDepartment {
		return approver.SameDepartment(requester), nil
	}
	return d.CanHandleDepartment(ctx, approver.EmployeeID, requester.DepartmentID)
}

// EligibleApprovers 满足步骤要求的全部审批人（不含申请人本人）
func (d *Directory) EligibleApprovers(ctx context.Context, criteria ApproverCriteria, requester *User) ([]User, error) {
	if requester.DepartmentID == nil {
		return nil, nil
	}

	query := d.DB.WithContext(ctx).Model(&User{}).
		Joins("JOIN positions ON positions.id = users.position_id").
		Where("users.employee_id <> ?", requester.EmployeeID)

	switch criteria.Type {
	case ApproveByLevel:
		if criteria.Value == nil {
			return nil, nil
		}
		query = query.Where("positions.position_level_id = ?", *criteria.Value)
	case ApproveByLevelRange:
		if criteria.Min == nil || criteria.Max == nil {
			return nil, nil
		}
		query = query.Where("positions.position_level_id BETWEEN ? AND ?", *criteria.Min, *criteria.Max)
	}

	if criteria.SameDepartment {
		query = query.Where("users.department_id = ?", *requester.DepartmentID)
	} else {
		query = query.Where("users.employee_id IN (?)",
			d.DB.Model(&ApproverDepartment{}).Select("employee_id").
				Where("department_id = ? AND is_active = ?", *requester.DepartmentID, true))
	}

	var users []User
	if err := query.Order("users.id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("查询审批人失败: %w", err)
	}
	return users, nil
}

// AssignDepartments 为审批人分配负责部门，已存在的映射重新启用
func (d *Directory) AssignDepartments(ctx context.Context, employeeID string, departmentIDs []uint) ([]ApproverDepartment, error) {
	if employeeID == "" || len(departmentIDs) == 0 {
		return nil, common.ErrInvalid("employee_id and department_ids are required")
	}
	if _, err := d.UserByEmployeeID(ctx, employeeID); err != nil {
		return nil, err
	}

	rows := make([]ApproverDepartment, 0, len(departmentIDs))
	for _, depID := range departmentIDs {
		rows = append(rows, ApproverDepartment{EmployeeID: employeeID, DepartmentID: depID, IsActive: true})
	}

	err := d.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "employee_id"}, {Name: "department_id"}},
			DoUpdates: clause.Assignments(map[string]any{"is_active": true, "updated_at": time.Now()}),
		}).Create(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("分配负责部门失败: %w", err)
	}

	d.logger.Info("审批人负责部门已更新",
		zap.String("employee_id", employeeID),
		zap.Int("departments", len(departmentIDs)),
	)
	return d.ListDepartments(ctx, employeeID)
}

// ListDepartments 审批人当前负责的部门
func (d *Directory) ListDepartments(ctx context.Context, employeeID string) ([]ApproverDepartment, error) {
	var rows []ApproverDepartment
	err := d.DB.WithContext(ctx).Scopes(common.ActiveOnly()).
		Where("employee_id = ?", employeeID).
		Order("department_id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询负责部门失败: %w", err)
	}
	return rows, nil
}

// RemoveDepartment 停用审批人的某个负责部门
func (d *Directory) RemoveDepartment(ctx context.Context, employeeID string, departmentID uint) error {
	res := d.DB.WithContext(ctx).Model(&ApproverDepartment{}).
		Where("employee_id = ? AND department_id = ? AND is_active = ?", employeeID, departmentID, true).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("停用负责部门失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return common.ErrNotFound("Mapping not found")
	}
	return nil
}
