package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"incidentdesk/internal/config"
	"incidentdesk/internal/logger"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// InitDatabase 打开数据库连接池，默认 PostgreSQL，本地可用 sqlite
// 返回的 *gorm.DB 由调用方持有并注入各服务，进程退出前调用 CloseDatabase
func InitDatabase(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	logLevel := gormLogger.Warn
	if cfg.SSLMode == "disable" {
		logLevel = gormLogger.Info
	}

	gormLog := &GormZapLogger{
		ZapLogger:                 logger.Get(),
		LogLevel:                  logLevel,
		SlowThreshold:             200 * time.Millisecond,
		IgnoreRecordNotFoundError: true,
	}

	if cfg.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("创建 sqlite 目录失败: %w", err)
		}
	}

	db, err := gorm.Open(dialector(cfg), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("打开数据库连接失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取 SQL DB 失败: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// sqlite 单写者
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	logger.Info("数据库连接成功",
		zap.String("driver", cfg.Driver),
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.DBName),
	)

	return db, nil
}

func dialector(cfg *config.DatabaseConfig) gorm.Dialector {
	if cfg.Driver == "sqlite" {
		return sqlite.Open(cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	}
	return postgres.Open(cfg.GetDSN())
}

// AutoMigrate 执行自动迁移
func AutoMigrate(db *gorm.DB, models ...any) error {
	logger.Info("开始执行数据库自动迁移", zap.Int("models", len(models)))
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	logger.Info("数据库迁移完成")
	return nil
}

// CloseDatabase 关闭数据库连接
func CloseDatabase(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// PingDatabase 数据库健康检查
func PingDatabase(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("数据库未初始化")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
