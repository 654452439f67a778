package infra

import (
	"context"
	"errors"
	"time"

	"incidentdesk/internal/logger"

	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"
)

// GormZapLogger 将 GORM 日志输出到 Zap
type GormZapLogger struct {
	ZapLogger                 *zap.Logger
	LogLevel                  gormLogger.LogLevel
	SlowThreshold             time.Duration
	IgnoreRecordNotFoundError bool
}

// LogMode 设置日志级别
func (l *GormZapLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *GormZapLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= gormLogger.Info {
		l.withContext(ctx).Sugar().Infof(msg, data...)
	}
}

func (l *GormZapLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= gormLogger.Warn {
		l.withContext(ctx).Sugar().Warnf(msg, data...)
	}
}

func (l *GormZapLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= gormLogger.Error {
		l.withContext(ctx).Sugar().Errorf(msg, data...)
	}
}

// Trace SQL 执行日志，错误与慢查询单独记录
func (l *GormZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormLogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	log := l.withContext(ctx)

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	if err != nil && (!errors.Is(err, gormLogger.ErrRecordNotFound) || !l.IgnoreRecordNotFoundError) {
		log.Error("SQL 执行错误", append(fields, zap.Error(err))...)
		return
	}

	if l.SlowThreshold > 0 && elapsed > l.SlowThreshold {
		log.Warn("SQL 慢查询", fields...)
		return
	}

	if l.LogLevel >= gormLogger.Info {
		log.Debug("SQL 执行", fields...)
	}
}

func (l *GormZapLogger) withContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return l.ZapLogger
	}
	if id := logger.GetRequestID(ctx); id != "" {
		return l.ZapLogger.With(zap.String("request_id", id))
	}
	return l.ZapLogger
}
