package worker

import (
	"context"

	"incidentdesk/internal/config"
	"incidentdesk/internal/infra/queue"
	"incidentdesk/internal/worker/handlers"
	"incidentdesk/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Server 后台任务服务器
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

// NewServer 创建 Worker 服务器并注册表单任务
func NewServer(
	cfg config.RedisConfig,
	notifier handlers.FormNotifier,
	reminder handlers.ReminderRunner,
	logger *zap.Logger,
) *Server {
	srv := asynq.NewServer(
		queue.RedisConnOpt(cfg),
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				queue.QueueNotification: 6,
				queue.QueueDefault:      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("任务执行失败",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
		},
	)

	return &Server{
		server: srv,
		mux:    NewMux(notifier, reminder, logger),
		logger: logger,
	}
}

// NewMux 任务类型与处理器的映射
func NewMux(notifier handlers.FormNotifier, reminder handlers.ReminderRunner, logger *zap.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	formHandler := handlers.NewFormHandler(notifier, reminder, logger)
	mux.HandleFunc(tasks.TypeFormNotification, formHandler.HandleFormNotification)
	mux.HandleFunc(tasks.TypeApprovalReminder, formHandler.HandleApprovalReminder)
	return mux
}

// Run 启动 Worker 服务器
func (s *Server) Run() error {
	s.logger.Info("Worker 服务器启动中...")
	return s.server.Run(s.mux)
}

// Start 非阻塞启动
func (s *Server) Start() error {
	s.logger.Info("Worker 服务器启动中 (后台)...")
	return s.server.Start(s.mux)
}

// Shutdown 停止 Worker 服务器
func (s *Server) Shutdown() {
	s.logger.Info("Worker 服务器停止中...")
	s.server.Shutdown()
}
