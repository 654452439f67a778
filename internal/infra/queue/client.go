package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"incidentdesk/internal/config"
	"incidentdesk/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// 队列名称
const (
	QueueNotification = "notification"
	QueueDefault      = "default"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueFormNotification(ctx context.Context, payload tasks.FormNotificationPayload) error
	EnqueueApprovalReminder(payload tasks.ApprovalReminderPayload) error
	Close() error
}

type asynqClient struct {
	client   *asynq.Client
	maxRetry int
	timeout  time.Duration
}

// NewClient 创建任务队列客户端
func NewClient(redisCfg config.RedisConfig, notifyCfg config.NotificationConfig) Client {
	timeout := time.Duration(notifyCfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &asynqClient{
		client:   asynq.NewClient(RedisConnOpt(redisCfg)),
		maxRetry: notifyCfg.MaxRetry,
		timeout:  timeout,
	}
}

// RedisConnOpt 按部署模式构造 asynq 连接参数
func RedisConnOpt(cfg config.RedisConfig) asynq.RedisConnOpt {
	switch cfg.Mode {
	case "sentinel":
		return asynq.RedisFailoverClientOpt{
			MasterName:       cfg.MasterName,
			SentinelAddrs:    cfg.SentinelAddrs,
			SentinelPassword: cfg.SentinelPassword,
			Password:         cfg.Password,
			DB:               cfg.DB,
		}
	case "cluster":
		return asynq.RedisClusterClientOpt{
			Addrs:    cfg.ClusterAddrs,
			Password: cfg.Password,
		}
	default:
		return asynq.RedisClientOpt{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
}

func (c *asynqClient) EnqueueFormNotification(ctx context.Context, payload tasks.FormNotificationPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeFormNotification, data)

	// 通知至多投递一次，除非配置了重试
	if _, err := c.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(c.timeout),
		asynq.Queue(QueueNotification),
	); err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	return nil
}

func (c *asynqClient) EnqueueApprovalReminder(payload tasks.ApprovalReminderPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeApprovalReminder, data)

	// 同一小时内只保留一个提醒任务
	if _, err := c.client.Enqueue(task,
		asynq.MaxRetry(0),
		asynq.Timeout(10*time.Minute),
		asynq.Queue(QueueDefault),
		asynq.Unique(time.Hour),
	); err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}
