package org

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Profile 登录后返回给前端的员工信息
type Profile struct {
	ID              uint       `json:"id"`
	Username        string     `json:"username"`
	Firstname       string     `json:"firstname"`
	Lastname        string     `json:"lastname"`
	Email           string     `json:"email,omitempty"`
	EmployeeID      string     `json:"employee_id"`
	Site            *string    `json:"site"`
	Department      *string    `json:"department"`
	Position        *string    `json:"position"`
	PositionLevel   *string    `json:"position_level"`
	PositionLevelID *uint      `json:"position_level_id"`
	ImageURL        *string    `json:"image_url"`
	LastLogin       *time.Time `json:"last_login"`
	EmployeeStatus  string     `json:"employee_status"`
}

// Profile 组装员工信息，关联数据缺失时对应字段为空
func (d *Directory) Profile(ctx context.Context, user *User) (*Profile, error) {
	p := &Profile{
		ID:             user.ID,
		Username:       user.Username,
		Firstname:      user.Firstname,
		Lastname:       user.Lastname,
		Email:          user.Email,
		EmployeeID:     user.EmployeeID,
		LastLogin:      user.LastLogin,
		EmployeeStatus: user.EmployeeStatus,
	}
	if user.ImageURL != "" {
		p.ImageURL = &user.ImageURL
	}

	db := d.DB.WithContext(ctx)
	if user.PositionID != nil {
		var pos Position
		found, err := firstOrNone(db, &pos, *user.PositionID)
		if err != nil {
			return nil, err
		}
		if found {
			p.Position = &pos.NameEN
			if pos.PositionLevelID != nil {
				var level PositionLevel
				ok, err := firstOrNone(db, &level, *pos.PositionLevelID)
				if err != nil {
					return nil, err
				}
				if ok {
					p.PositionLevel = &level.LevelName
					p.PositionLevelID = &level.ID
				}
			}
		}
	}
	if user.DepartmentID != nil {
		var dept Department
		found, err := firstOrNone(db, &dept, *user.DepartmentID)
		if err != nil {
			return nil, err
		}
		if found {
			p.Department = &dept.NameEN
		}
	}
	if user.SiteID != nil {
		var site Site
		found, err := firstOrNone(db, &site, *user.SiteID)
		if err != nil {
			return nil, err
		}
		if found {
			p.Site = &site.NameEN
		}
	}
	return p, nil
}

// UserByAnyIdentity 按用户名、员工编号或邮箱任一匹配查询
func (d *Directory) UserByAnyIdentity(ctx context.Context, username, employeeID, email string) (*User, error) {
	var user User
	err := d.DB.WithContext(ctx).
		Where("username = ? OR employee_id = ? OR email = ?", username, employeeID, email).
		Order("id").
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询员工失败: %w", err)
	}
	return &user, nil
}

// SaveUser 保存员工账号的全部字段
func (d *Directory) SaveUser(ctx context.Context, user *User) error {
	if err := d.DB.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("保存员工失败: %w", err)
	}
	return nil
}

func firstOrNone(db *gorm.DB, dest any, id uint) (bool, error) {
	err := db.First(dest, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("查询组织数据失败: %w", err)
	}
	return true, nil
}
