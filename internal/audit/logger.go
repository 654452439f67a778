package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"incidentdesk/internal/common"
	"incidentdesk/internal/logger"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 审计动作
const (
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionVersion  = "version"
	ActionActivate = "activate"
	ActionStatus   = "status"
	ActionUpsert   = "upsert"
)

// Log 审计日志，只追加
type Log struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Actor      string         `gorm:"size:100;index" json:"actor"`
	Action     string         `gorm:"size:50;not null" json:"action"`
	Resource   string         `gorm:"size:50;not null;index:idx_audit_resource,priority:1" json:"resource"`
	ResourceID string         `gorm:"size:100;index:idx_audit_resource,priority:2" json:"resource_id"`
	Details    datatypes.JSON `gorm:"type:jsonb" json:"details,omitempty" swaggertype:"object"`
	RequestID  string         `gorm:"size:64" json:"request_id,omitempty"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

// TableName 指定表名
func (Log) TableName() string { return "audit_logs" }

// Entry 一条待写入的审计事件
type Entry struct {
	Actor      string
	Action     string
	Resource   string
	ResourceID string
	Details    any
}

// Recorder 审计日志记录器
type Recorder struct {
	db *gorm.DB
}

// NewRecorder 创建审计日志记录器
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Record 写入审计日志；tx 非空时随业务事务一起提交
func (r *Recorder) Record(ctx context.Context, tx *gorm.DB, e Entry) error {
	if tx == nil {
		tx = r.db
	}
	row := Log{
		Actor:      e.Actor,
		Action:     e.Action,
		Resource:   e.Resource,
		ResourceID: e.ResourceID,
		RequestID:  logger.GetRequestID(ctx),
		CreatedAt:  time.Now().UTC(),
	}
	if e.Details != nil {
		data, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("序列化审计详情失败: %w", err)
		}
		row.Details = datatypes.JSON(data)
	}
	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("写入审计日志失败: %w", err)
	}
	return nil
}

// Filter 审计日志查询条件
type Filter struct {
	common.PaginationRequest
	common.DateRange
	Actor      string `form:"actor"`
	Resource   string `form:"resource"`
	ResourceID string `form:"resource_id"`
	Action     string `form:"action"`
}

// List 按条件分页查询审计日志
func (r *Recorder) List(ctx context.Context, f Filter) ([]Log, int64, error) {
	base := common.NewBaseService(r.db)
	query := r.db.Model(&Log{})
	query = base.ApplyEqualFilter(query, "actor", f.Actor)
	query = base.ApplyEqualFilter(query, "resource", f.Resource)
	query = base.ApplyEqualFilter(query, "resource_id", f.ResourceID)
	query = base.ApplyEqualFilter(query, "action", f.Action)
	query = base.ApplyDateRangeFilter(query, "created_at", &f.DateRange)

	var logs []Log
	total, err := base.FindPage(ctx, query.Order("id DESC"), f.PaginationRequest, &logs)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
