package common

import (
	"context"
	"fmt"
	"slices"

	"gorm.io/gorm"
)

// BaseService 服务基类，封装列表过滤、分页与事务
// 业务 Service 嵌入此基类复用查询拼装逻辑
type BaseService struct {
	DB *gorm.DB
}

// NewBaseService 创建BaseService实例
func NewBaseService(db *gorm.DB) *BaseService {
	return &BaseService{DB: db}
}

// ============================================================================
// 过滤
// ============================================================================

// ApplyEqualFilter 等值过滤；空字符串、零值指针不参与过滤
func (s *BaseService) ApplyEqualFilter(query *gorm.DB, column string, value any) *gorm.DB {
	switch v := value.(type) {
	case nil:
		return query
	case string:
		if v == "" {
			return query
		}
	case *int:
		if v == nil {
			return query
		}
		value = *v
	case *uint:
		if v == nil {
			return query
		}
		value = *v
	case *string:
		if v == nil || *v == "" {
			return query
		}
		value = *v
	}
	return query.Where(fmt.Sprintf("%s = ?", column), value)
}

// ApplyStatusFilter 状态过滤
func (s *BaseService) ApplyStatusFilter(query *gorm.DB, column, status string) *gorm.DB {
	return s.ApplyEqualFilter(query, column, status)
}

// ApplyDateRangeFilter 日期范围过滤，闭区间
func (s *BaseService) ApplyDateRangeFilter(query *gorm.DB, column string, dateRange *DateRange) *gorm.DB {
	if dateRange.IsZero() {
		return query
	}
	if !dateRange.Start.IsZero() {
		query = query.Where(fmt.Sprintf("%s >= ?", column), dateRange.Start)
	}
	if !dateRange.End.IsZero() {
		query = query.Where(fmt.Sprintf("%s <= ?", column), dateRange.End)
	}
	return query
}

// ============================================================================
// 分页与排序
// ============================================================================

// ApplyPagination 应用分页条件
func (s *BaseService) ApplyPagination(query *gorm.DB, req PaginationRequest) *gorm.DB {
	return query.Offset(req.GetOffset()).Limit(req.GetPageSize())
}

// ApplySorting 应用排序条件，字段不在白名单内时回退到 defaultOrder
func (s *BaseService) ApplySorting(query *gorm.DB, sortBy, sortOrder string, allowedFields []string, defaultOrder string) *gorm.DB {
	if sortBy == "" || !slices.Contains(allowedFields, sortBy) {
		return query.Order(defaultOrder)
	}
	if sortOrder != "asc" && sortOrder != "desc" {
		sortOrder = "desc"
	}
	return query.Order(fmt.Sprintf("%s %s", sortBy, sortOrder))
}

// FindPage 统计总数后按分页取数
func (s *BaseService) FindPage(ctx context.Context, query *gorm.DB, req PaginationRequest, dest any) (int64, error) {
	var total int64
	if err := query.WithContext(ctx).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("统计记录数失败: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	if err := s.ApplyPagination(query.WithContext(ctx), req).Find(dest).Error; err != nil {
		return 0, fmt.Errorf("查询列表失败: %w", err)
	}
	return total, nil
}

// ============================================================================
// 通用操作
// ============================================================================

// Exists 检查记录是否存在
func (s *BaseService) Exists(ctx context.Context, model any, condition string, args ...any) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(model).Where(condition, args...).Count(&count).Error
	return count > 0, err
}

// Transaction 执行事务，fn 返回错误时整体回滚
func (s *BaseService) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.DB.WithContext(ctx).Transaction(fn)
}
