package cases

import (
	"context"
	"fmt"
	"time"

	"incidentdesk/internal/audit"
	"incidentdesk/internal/common"
	"incidentdesk/internal/logger"
	"incidentdesk/internal/sequence"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("incidentdesk/cases")

// 业务错误
var (
	ErrCaseReportNotFound    = common.ErrNotFound("Case report not found")
	ErrInvestigationNotFound = common.ErrNotFound("Investigation not found")
	ErrAccidentCaseNotFound  = common.ErrNotFound("Accident case not found")
)

// Filter 案件列表过滤
type Filter struct {
	common.PaginationRequest
	common.DateRange
	SiteID       *uint  `form:"site_id"`
	DepartmentID *uint  `form:"department_id"`
	DriverID     *uint  `form:"driver_id"`
	Status       string `form:"casestatus"`
	Priority     string `form:"priority"`
}

// Service 事件报告与事故案件
type Service struct {
	*common.BaseService
	seq        *sequence.Generator
	classifier *Classifier
	audit      *audit.Recorder
	logger     *zap.Logger
	now        func() time.Time
}

// Option 自定义配置
type Option func(*Service)

// WithLogger 注入日志
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService 创建案件服务
func NewService(db *gorm.DB, seq *sequence.Generator, classifier *Classifier, recorder *audit.Recorder, opts ...Option) *Service {
	s := &Service{
		BaseService: common.NewBaseService(db),
		seq:         seq,
		classifier:  classifier,
		audit:       recorder,
		logger:      logger.L(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) applyFilter(query *gorm.DB, f *Filter, dateColumn string) *gorm.DB {
	query = s.ApplyEqualFilter(query, "site_id", f.SiteID)
	query = s.ApplyEqualFilter(query, "department_id", f.DepartmentID)
	query = s.ApplyEqualFilter(query, "driver_id", f.DriverID)
	query = s.ApplyStatusFilter(query, "casestatus", f.Status)
	query = s.ApplyEqualFilter(query, "priority", f.Priority)
	return s.ApplyDateRangeFilter(query, dateColumn, &f.DateRange)
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, actor, action, resource, id string, details any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, tx, audit.Entry{
		Actor:      actor,
		Action:     action,
		Resource:   resource,
		ResourceID: id,
		Details:    details,
	})
}

// wrapErr 业务错误原样返回，其余错误补充上下文
func wrapErr(msg string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := common.AsBusinessError(err); ok {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
