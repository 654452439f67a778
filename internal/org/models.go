package org

import "time"

// PositionLevel 职级
type PositionLevel struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	LevelName string `gorm:"size:100" json:"level_name"`
}

// TableName 指定表名
func (PositionLevel) TableName() string { return "position_levels" }

// Position 职位
type Position struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	NameTH          string `gorm:"column:name_th;size:255" json:"name_th"`
	NameEN          string `gorm:"column:name_en;size:255" json:"name_en"`
	PositionLevelID *uint  `gorm:"index" json:"position_level_id,omitempty"`
}

// TableName 指定表名
func (Position) TableName() string { return "positions" }

// Department 部门
type Department struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	NameTH string `gorm:"column:name_th;size:255" json:"name_th"`
	NameEN string `gorm:"column:name_en;size:255" json:"name_en"`
}

// TableName 指定表名
func (Department) TableName() string { return "departments" }

// Site 站点
type Site struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	SiteCode string `gorm:"size:20" json:"site_code"`
	NameTH   string `gorm:"column:name_th;size:255" json:"name_th"`
	NameEN   string `gorm:"column:name_en;size:255" json:"name_en"`
}

// TableName 指定表名
func (Site) TableName() string { return "sites" }

// User 员工账号
type User struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Username       string     `gorm:"size:100;uniqueIndex" json:"username"`
	PasswordHash   string     `gorm:"size:255" json:"-"`
	Email          string     `gorm:"size:255;index" json:"email"`
	Firstname      string     `gorm:"size:100" json:"firstname"`
	Lastname       string     `gorm:"size:100" json:"lastname"`
	EmployeeID     string     `gorm:"size:50;uniqueIndex" json:"employee_id"`
	DepartmentID   *uint      `gorm:"index" json:"department_id,omitempty"`
	SiteID         *uint      `json:"site_id,omitempty"`
	PositionID     *uint      `json:"position_id,omitempty"`
	ImageURL       string     `gorm:"size:500" json:"image_url,omitempty"`
	EmployeeStatus string     `gorm:"size:50;default:active" json:"employee_status"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// FullName 姓名
func (u *User) FullName() string {
	if u.Lastname == "" {
		return u.Firstname
	}
	return u.Firstname + " " + u.Lastname
}

// SameDepartment 两名员工是否属于同一部门（未分配部门视为不同）
func (u *User) SameDepartment(other *User) bool {
	return u.DepartmentID != nil && other.DepartmentID != nil && *u.DepartmentID == *other.DepartmentID
}

// ApproverDepartment 审批人可处理的部门
type ApproverDepartment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	EmployeeID   string    `gorm:"size:50;not null;uniqueIndex:uk_approver_department" json:"employee_id"`
	DepartmentID uint      `gorm:"not null;uniqueIndex:uk_approver_department" json:"department_id"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName 指定表名
func (ApproverDepartment) TableName() string { return "approver_departments" }

// Models 需要迁移的模型
func Models() []any {
	return []any{&PositionLevel{}, &Position{}, &Department{}, &Site{}, &User{}, &ApproverDepartment{}}
}
