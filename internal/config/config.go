package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Log          LogConfig          `mapstructure:"log"`
	Auth         AuthConfig         `mapstructure:"auth"`
	SMTP         SMTPConfig         `mapstructure:"smtp"`
	Notification NotificationConfig `mapstructure:"notification"`
	Numbering    NumberingConfig    `mapstructure:"numbering"`
	Priority     PriorityConfig     `mapstructure:"priority"`
	Reminder     ReminderConfig     `mapstructure:"reminder"`
	Forms        FormsConfig        `mapstructure:"forms"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// postgres, sqlite
	Driver          string `mapstructure:"driver"`
	Path            string `mapstructure:"path"` // sqlite 文件路径
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// standalone, sentinel, cluster
	Mode string `mapstructure:"mode"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	MasterName       string   `mapstructure:"master_name"`
	SentinelAddrs    []string `mapstructure:"sentinel_addrs"`
	SentinelPassword string   `mapstructure:"sentinel_password"`

	ClusterAddrs []string `mapstructure:"cluster_addrs"`

	PoolSize     int `mapstructure:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns"`
}

// Addr 返回单节点地址
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret           string `mapstructure:"jwt_secret"`
	JWTAlgorithm        string `mapstructure:"jwt_algorithm"` // HS256, HS384, HS512
	Issuer              string `mapstructure:"issuer"`
	AccessTokenMinutes  int    `mapstructure:"access_token_minutes"`
	GoogleClientID      string `mapstructure:"google_client_id"`
	GoogleClientSecret  string `mapstructure:"google_client_secret"`
	GoogleRedirectURL   string `mapstructure:"google_redirect_url"`
	AllowedGoogleDomain string `mapstructure:"allowed_google_domain"`
}

// SMTPConfig 邮件发送配置
type SMTPConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
	UseTLS      bool   `mapstructure:"use_tls"` // true: 465 隐式 TLS；false: STARTTLS
	OpsMailbox  string `mapstructure:"ops_mailbox"`
}

// NotificationConfig 通知任务配置
type NotificationConfig struct {
	SystemURL      string `mapstructure:"system_url"`
	MaxRetry       int    `mapstructure:"max_retry"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// NumberingConfig 单据编号配置
type NumberingConfig struct {
	SiteCodes    map[string]string `mapstructure:"site_codes"` // site_id -> 站点编码
	FallbackCode string            `mapstructure:"fallback_code"`
}

// PriorityConfig 案件优先级规则
type PriorityConfig struct {
	CrisisExpression string  `mapstructure:"crisis_expression"`
	MajorExpression  string  `mapstructure:"major_expression"`
	CrisisDamage     float64 `mapstructure:"crisis_damage"`
	MajorDamage      float64 `mapstructure:"major_damage"`
}

// ReminderConfig 审批提醒配置
type ReminderConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Spec       string `mapstructure:"spec"` // 带秒的 cron 表达式
	StaleHours int    `mapstructure:"stale_hours"`
}

// FormsConfig 表单模板配置
type FormsConfig struct {
	SeedDir string `mapstructure:"seed_dir"`
}

var globalConfig *Config

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()

	if configPath == "" {
		v.SetConfigName(env)
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}

	v.SetConfigType("yaml")

	// 环境变量优先级高于配置文件：APP_DATABASE_HOST
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.path", "./data/incidentdesk.db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 30)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 1800)

	v.SetDefault("redis.mode", "standalone")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("auth.jwt_algorithm", "HS256")
	v.SetDefault("auth.issuer", "incidentdesk")
	v.SetDefault("auth.access_token_minutes", 30)

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from_name", "Incident Desk")

	v.SetDefault("notification.max_retry", 0)
	v.SetDefault("notification.timeout_seconds", 30)

	v.SetDefault("numbering.fallback_code", "XX")

	v.SetDefault("priority.crisis_damage", 500000)
	v.SetDefault("priority.major_damage", 50000)

	v.SetDefault("reminder.spec", "0 0 8 * * *")
	v.SetDefault("reminder.stale_hours", 48)

	v.SetDefault("forms.seed_dir", "./config/forms")
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
