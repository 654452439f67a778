package api

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	auditHandlers "incidentdesk/api/handlers/audit"
	authHandlers "incidentdesk/api/handlers/auth"
	casesHandlers "incidentdesk/api/handlers/cases"
	formsHandlers "incidentdesk/api/handlers/forms"
	"incidentdesk/internal/audit"
	"incidentdesk/internal/auth"
	"incidentdesk/internal/cases"
	"incidentdesk/internal/config"
	"incidentdesk/internal/forms"
	"incidentdesk/internal/infra"
	"incidentdesk/internal/infra/queue"
	"incidentdesk/internal/logger"
	"incidentdesk/internal/notification"
	"incidentdesk/internal/org"
	"incidentdesk/internal/scheduler"
	"incidentdesk/internal/sequence"
	"incidentdesk/internal/worker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const devJWTSecret = "default_jwt_secret_key_change_in_production"

// AppContainer 应用依赖容器
type AppContainer struct {
	DB          *gorm.DB
	Config      *config.Config
	RedisClient redis.UniversalClient
	QueueClient queue.Client

	JWTService  *auth.JWTService
	StateStore  auth.StateStore
	AuthService *auth.Service

	Directory *org.Directory
	Recorder  *audit.Recorder
	Sequence  *sequence.Generator

	Templates *forms.TemplateService
	Rules     *forms.RuleService
	Engine    *forms.Engine
	EventBus  *forms.EventBus
	Notifier  *forms.Notifier
	Seeder    *forms.Seeder

	Cases *cases.Service

	WorkerServer *worker.Server
	Reminder     *scheduler.ReminderScheduler
}

// Handlers HTTP 处理器集合
type Handlers struct {
	Auth  *authHandlers.AuthHandler
	Audit *auditHandlers.AuditHandler
	Forms *formsHandlers.FormsHandler
	Cases *casesHandlers.CasesHandler
}

// Models 需要自动迁移的全部表
func Models() []any {
	models := append(org.Models(), forms.Models()...)
	models = append(models, cases.Models()...)
	return append(models, &sequence.Counter{}, &audit.Log{}, &notification.EmailLog{})
}

// InitContainer 初始化应用容器
func InitContainer(db *gorm.DB, cfg *config.Config) (*AppContainer, error) {
	container := &AppContainer{
		DB:     db,
		Config: cfg,
	}

	container.initRedis(cfg)

	if err := container.initAuth(cfg); err != nil {
		return nil, err
	}

	if err := container.initDomain(db, cfg); err != nil {
		return nil, err
	}

	if err := container.initWorker(cfg); err != nil {
		return nil, err
	}

	return container, nil
}

// InitHandlers 初始化所有 Handlers
func (c *AppContainer) InitHandlers() *Handlers {
	return &Handlers{
		Auth:  authHandlers.NewAuthHandler(c.AuthService),
		Audit: auditHandlers.NewAuditHandler(c.Recorder),
		Forms: formsHandlers.NewFormsHandler(c.Templates, c.Rules, c.Engine, c.Directory, c.EventBus),
		Cases: casesHandlers.NewCasesHandler(c.Cases),
	}
}

// SeedForms 从 YAML 目录导入尚不存在的表单模板
func (c *AppContainer) SeedForms(ctx context.Context) {
	dir := c.Config.Forms.SeedDir
	if dir == "" {
		return
	}
	if _, err := os.Stat(dir); err != nil {
		logger.Info("未找到表单模板目录，跳过导入", zap.String("dir", dir))
		return
	}
	n, err := c.Seeder.SeedDirectory(ctx, dir)
	if err != nil {
		logger.Warn("表单模板导入失败", zap.String("dir", dir), zap.Error(err))
		return
	}
	logger.Info("表单模板导入完成", zap.String("dir", dir), zap.Int("created", n))
}

// Close 释放队列与 Redis 连接
func (c *AppContainer) Close() {
	if c.Reminder != nil {
		c.Reminder.Stop()
	}
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			logger.Warn("关闭队列客户端失败", zap.Error(err))
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			logger.Warn("关闭 Redis 失败", zap.Error(err))
		}
	}
}

// initRedis Redis 不可用时黑名单与 OAuth2 state 退回内存实现，且不投递通知任务
func (c *AppContainer) initRedis(cfg *config.Config) {
	rdb, err := infra.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Warn("Redis 不可用，令牌黑名单与 OAuth2 状态将退回内存实现，通知任务停用", zap.Error(err))
		return
	}
	c.RedisClient = rdb
	c.QueueClient = queue.NewClient(cfg.Redis, cfg.Notification)
}

func (c *AppContainer) initAuth(cfg *config.Config) error {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}

	jwtSecretKey := strings.TrimSpace(os.Getenv("JWT_SECRET_KEY"))
	if jwtSecretKey == "" {
		jwtSecretKey = strings.TrimSpace(cfg.Auth.JWTSecret)
	}
	if jwtSecretKey == "" {
		if strings.EqualFold(cfg.Server.Mode, "release") || strings.EqualFold(appEnv, "prod") || strings.EqualFold(appEnv, "production") {
			logger.Fatal("JWT_SECRET_KEY 未配置，生产环境禁止使用默认密钥")
		}
		jwtSecretKey = devJWTSecret
		logger.Warn("JWT_SECRET_KEY 未配置，已回退为开发默认值，请在生产环境设置强随机密钥")
	}

	var blacklist auth.Blacklist = auth.NewMemoryBlacklist()
	if c.RedisClient != nil {
		blacklist = auth.NewRedisBlacklist(c.RedisClient)
		c.StateStore = auth.NewRedisStateStore(c.RedisClient)
	} else {
		c.StateStore = auth.NewMemoryStateStore(10 * time.Minute)
	}

	jwtService, err := auth.NewJWTService(jwtSecretKey, cfg.Auth, auth.WithBlacklist(blacklist))
	if err != nil {
		return fmt.Errorf("初始化 JWT 服务失败: %w", err)
	}
	c.JWTService = jwtService

	c.Directory = org.NewDirectory(c.DB, org.WithLogger(logger.Get()))

	opts := []auth.ServiceOption{auth.WithLogger(logger.Get())}
	if google := auth.NewGoogleProvider(cfg.Auth); google != nil {
		opts = append(opts, auth.WithGoogle(google, c.StateStore))
		logger.Info("Google 登录已启用", zap.String("domain", cfg.Auth.AllowedGoogleDomain))
	}
	c.AuthService = auth.NewService(c.Directory, c.JWTService, opts...)
	return nil
}

func (c *AppContainer) initDomain(db *gorm.DB, cfg *config.Config) error {
	log := logger.Get()

	c.Recorder = audit.NewRecorder(db)
	c.Sequence = sequence.NewGenerator(cfg.Numbering, sequence.WithLogger(log))

	c.Templates = forms.NewTemplateService(db, c.Recorder, log)
	c.Rules = forms.NewRuleService(db, c.Recorder, log)
	c.Seeder = forms.NewSeeder(c.Templates, c.Rules, log)

	resolver := forms.NewResolver(db, c.Directory)
	c.EventBus = forms.NewEventBus(16)
	engineOpts := []forms.EngineOption{
		forms.WithEventBus(c.EventBus),
		forms.WithEngineLogger(log),
	}
	if c.QueueClient != nil {
		engineOpts = append(engineOpts, forms.WithQueue(c.QueueClient))
	}
	c.Engine = forms.NewEngine(db, c.Directory, resolver, c.Sequence, engineOpts...)

	mailer := notification.NewEmailService(db, cfg.SMTP, notification.WithEmailLogger(log))
	c.Notifier = forms.NewNotifier(db, c.Directory, resolver, mailer, cfg.Notification, cfg.SMTP.OpsMailbox)

	classifier, err := cases.NewClassifier(cfg.Priority)
	if err != nil {
		return fmt.Errorf("初始化优先级规则失败: %w", err)
	}
	c.Cases = cases.NewService(db, c.Sequence, classifier, c.Recorder, cases.WithLogger(log))
	return nil
}

func (c *AppContainer) initWorker(cfg *config.Config) error {
	if c.QueueClient == nil {
		logger.Warn("任务队列不可用，Worker 与审批提醒未启用")
		return nil
	}
	c.WorkerServer = worker.NewServer(cfg.Redis, c.Notifier, c.Notifier, logger.Get())

	if !cfg.Reminder.Enabled {
		return nil
	}
	reminder, err := scheduler.NewReminderScheduler(cfg.Reminder, c.QueueClient, logger.Get())
	if err != nil {
		return fmt.Errorf("初始化审批提醒失败: %w", err)
	}
	c.Reminder = reminder
	return nil
}
