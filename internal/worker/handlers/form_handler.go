package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"incidentdesk/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// FormNotifier 表单通知投递抽象，便于注入 mock
type FormNotifier interface {
	Deliver(ctx context.Context, p tasks.FormNotificationPayload) error
}

// ReminderRunner 待审批提醒执行抽象
type ReminderRunner interface {
	RemindStale(ctx context.Context, staleHours int) (int, error)
}

// FormHandler 表单相关后台任务
type FormHandler struct {
	notifier FormNotifier
	reminder ReminderRunner
	logger   *zap.Logger
}

// NewFormHandler 创建表单任务处理器
func NewFormHandler(notifier FormNotifier, reminder ReminderRunner, logger *zap.Logger) *FormHandler {
	return &FormHandler{
		notifier: notifier,
		reminder: reminder,
		logger:   logger,
	}
}

// HandleFormNotification 投递表单状态变更邮件
func (h *FormHandler) HandleFormNotification(ctx context.Context, t *asynq.Task) error {
	var p tasks.FormNotificationPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	h.logger.Info("开始投递表单通知",
		zap.String("event", p.Event),
		zap.String("form_id", p.FormID),
	)

	if err := h.notifier.Deliver(ctx, p); err != nil {
		h.logger.Error("表单通知投递失败",
			zap.String("event", p.Event),
			zap.String("form_id", p.FormID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// HandleApprovalReminder 提醒长时间未处理的审批
func (h *FormHandler) HandleApprovalReminder(ctx context.Context, t *asynq.Task) error {
	var p tasks.ApprovalReminderPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	sent, err := h.reminder.RemindStale(ctx, p.StaleHours)
	if err != nil {
		h.logger.Error("审批提醒执行失败", zap.Int("stale_hours", p.StaleHours), zap.Error(err))
		return err
	}
	h.logger.Info("审批提醒完成", zap.Int("stale_hours", p.StaleHours), zap.Int("sent", sent))
	return nil
}
