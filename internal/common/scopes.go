package common

import "gorm.io/gorm"

// ActiveOnly 仅查询 is_active 为真的记录
// 使用方法：db.Scopes(common.ActiveOnly()).Find(&rules)
func ActiveOnly() func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("is_active = ?", true)
	}
}

// Paginate 分页 Scope
// 使用方法：db.Scopes(common.Paginate(req)).Find(&items)
func Paginate(req PaginationRequest) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(req.GetOffset()).Limit(req.GetPageSize())
	}
}
