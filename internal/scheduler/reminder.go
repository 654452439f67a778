package scheduler

import (
	"fmt"
	"sync"

	"incidentdesk/internal/config"
	"incidentdesk/internal/worker/tasks"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ReminderEnqueuer 审批提醒入队抽象
type ReminderEnqueuer interface {
	EnqueueApprovalReminder(payload tasks.ApprovalReminderPayload) error
}

// ReminderScheduler 定时把待审批提醒任务放入队列
type ReminderScheduler struct {
	cron       *cron.Cron
	queue      ReminderEnqueuer
	spec       string
	staleHours int
	logger     *zap.Logger
	mu         sync.Mutex
	running    bool
}

// NewReminderScheduler 创建提醒调度器，spec 为带秒的 cron 表达式
func NewReminderScheduler(cfg config.ReminderConfig, queue ReminderEnqueuer, logger *zap.Logger) (*ReminderScheduler, error) {
	s := &ReminderScheduler{
		cron:       cron.New(cron.WithSeconds()),
		queue:      queue,
		spec:       cfg.Spec,
		staleHours: cfg.StaleHours,
		logger:     logger,
	}
	if _, err := s.cron.AddFunc(cfg.Spec, s.Enqueue); err != nil {
		return nil, fmt.Errorf("无效的提醒 cron 表达式 %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Enqueue 投递一次提醒任务；失败只记录日志，等待下个周期
func (s *ReminderScheduler) Enqueue() {
	payload := tasks.ApprovalReminderPayload{StaleHours: s.staleHours}
	if err := s.queue.EnqueueApprovalReminder(payload); err != nil {
		s.logger.Warn("审批提醒入队失败", zap.Error(err))
		return
	}
	s.logger.Info("审批提醒已入队", zap.Int("stale_hours", s.staleHours))
}

// Start 启动调度
func (s *ReminderScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.logger.Info("审批提醒调度启动", zap.String("spec", s.spec))
	s.cron.Start()
}

// Stop 停止调度并等待正在执行的任务结束
func (s *ReminderScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("审批提醒调度已停止")
}
