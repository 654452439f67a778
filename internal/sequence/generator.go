package sequence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"incidentdesk/internal/config"
	"incidentdesk/internal/logger"
	"incidentdesk/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 案件单据类型前缀
const (
	PrefixCaseReport   = "NC"
	PrefixAccidentCase = "AC"
)

var tracer = otel.Tracer("incidentdesk/sequence")

// Generator 基于计数行的单据编号生成器
// 计数行在调用方事务内加行锁递增，编号与业务记录同时提交
type Generator struct {
	siteCodes map[int]string
	fallback  string
	logger    *zap.Logger
}

// Option 生成器配置项
type Option func(*Generator)

// WithLogger 注入日志
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGenerator 创建编号生成器
func NewGenerator(cfg config.NumberingConfig, opts ...Option) *Generator {
	g := &Generator{
		siteCodes: make(map[int]string, len(cfg.SiteCodes)),
		fallback:  cfg.FallbackCode,
		logger:    logger.L(),
	}
	if g.fallback == "" {
		g.fallback = "XX"
	}
	for key, code := range cfg.SiteCodes {
		id, err := strconv.Atoi(key)
		if err != nil {
			g.logger.Warn("忽略无效的站点编号映射", zap.String("site_id", key))
			continue
		}
		g.siteCodes[id] = code
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SiteCode 站点编码，多个站点可共用一个编码；未知站点返回兜底编码
func (g *Generator) SiteCode(siteID int) string {
	if code, ok := g.siteCodes[siteID]; ok && code != "" {
		return code
	}
	return g.fallback
}

// Next 在 tx 内为 (scope, period) 分配下一个序号
func (g *Generator) Next(ctx context.Context, tx *gorm.DB, scope, period string) (int64, error) {
	ctx, span := tracer.Start(ctx, "sequence.Next")
	defer span.End()
	span.SetAttributes(attribute.String("sequence.scope", scope), attribute.String("sequence.period", period))

	db := tx.WithContext(ctx)

	// 首次使用时插入计数行，已存在则忽略
	seed := Counter{Scope: scope, Period: period}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("初始化编号计数失败: %w", err)
	}

	var counter Counter
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("scope = ? AND period = ?", scope, period).
		First(&counter).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("锁定编号计数失败: %w", err)
	}

	next := counter.Value + 1
	if err := db.Model(&Counter{}).Where("id = ?", counter.ID).
		Updates(map[string]any{"value": next, "updated_at": time.Now()}).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("更新编号计数失败: %w", err)
	}

	span.SetAttributes(attribute.Int64("sequence.value", next))
	return next, nil
}

// FormID 生成表单提交编号 {FORM_CODE}-{YYYY}-{SEQ:04d}
func (g *Generator) FormID(ctx context.Context, tx *gorm.DB, formCode string, at time.Time) (string, error) {
	period := at.Format("2006")
	seq, err := g.Next(ctx, tx, formCode, period)
	if err != nil {
		return "", err
	}
	metrics.SequenceAllocationsTotal.WithLabelValues("form").Inc()
	return FormatFormID(formCode, period, seq), nil
}

// CaseNo 生成案件编号 {TYPE}-{SITE_CODE}-{YYMM}-{SEQ:03d}，计数按站点编码共享
func (g *Generator) CaseNo(ctx context.Context, tx *gorm.DB, prefix string, siteID int, at time.Time) (string, error) {
	code := g.SiteCode(siteID)
	period := at.Format("0601")
	seq, err := g.Next(ctx, tx, prefix+"-"+code, period)
	if err != nil {
		return "", err
	}
	metrics.SequenceAllocationsTotal.WithLabelValues(prefix).Inc()
	return FormatCaseNo(prefix, code, period, seq), nil
}

// FormatFormID 格式化表单编号
func FormatFormID(formCode, year string, seq int64) string {
	return fmt.Sprintf("%s-%s-%04d", formCode, year, seq)
}

// FormatCaseNo 格式化案件编号
func FormatCaseNo(prefix, siteCode, yymm string, seq int64) string {
	return fmt.Sprintf("%s-%s-%s-%03d", prefix, siteCode, yymm, seq)
}
