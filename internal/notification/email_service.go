package notification

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"incidentdesk/internal/config"
	"incidentdesk/internal/logger"
	"incidentdesk/internal/metrics"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 邮件发送状态
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Message 一封待发送的邮件
type Message struct {
	To       []string
	CC       []string
	Subject  string
	HTMLBody string
	Category string
}

// Recipients 收件人与抄送去重合并
func (m *Message) Recipients() []string {
	seen := make(map[string]struct{}, len(m.To)+len(m.CC))
	out := make([]string, 0, len(m.To)+len(m.CC))
	for _, addr := range append(append([]string{}, m.To...), m.CC...) {
		addr = strings.TrimSpace(addr)
		key := strings.ToLower(addr)
		if addr == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	return out
}

// Mailer 邮件发送接口
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// EmailLog 邮件发送日志
type EmailLog struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	Category     string     `json:"category" gorm:"type:varchar(50);index"`
	ToAddresses  []string   `json:"to_addresses" gorm:"type:jsonb;serializer:json"`
	CCAddresses  []string   `json:"cc_addresses" gorm:"type:jsonb;serializer:json"`
	Subject      string     `json:"subject" gorm:"type:varchar(500)"`
	Status       string     `json:"status" gorm:"type:varchar(20);index"`
	ErrorMessage string     `json:"error_message" gorm:"type:text"`
	SentAt       *time.Time `json:"sent_at"`
	CreatedAt    time.Time  `json:"created_at" gorm:"index"`
}

// TableName 指定表名
func (EmailLog) TableName() string {
	return "email_logs"
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailService SMTP 邮件服务
type EmailService struct {
	db     *gorm.DB
	config config.SMTPConfig
	send   sendFunc
	logger *zap.Logger
}

// EmailOption 配置项
type EmailOption func(*EmailService)

// WithEmailLogger 注入日志
func WithEmailLogger(l *zap.Logger) EmailOption {
	return func(s *EmailService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewEmailService 创建邮件服务；db 为空时不记录发送日志
func NewEmailService(db *gorm.DB, cfg config.SMTPConfig, opts ...EmailOption) *EmailService {
	s := &EmailService{
		db:     db,
		config: cfg,
		logger: logger.L(),
	}
	if cfg.UseTLS {
		s.send = s.sendWithTLS
	} else {
		// smtp.SendMail 在服务器支持时自动 STARTTLS
		s.send = smtp.SendMail
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send 同步发送邮件并写入发送日志；未启用 SMTP 时只记录
func (s *EmailService) Send(ctx context.Context, msg *Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("收件人不能为空")
	}

	if !s.config.Enabled {
		s.logger.Info("SMTP 未启用，跳过发送",
			zap.Strings("to", msg.To),
			zap.String("subject", msg.Subject),
		)
		s.writeLog(ctx, msg, StatusSkipped, nil)
		metrics.NotificationsTotal.WithLabelValues(msg.Category, StatusSkipped).Inc()
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	err := s.send(addr, auth, s.config.FromAddress, msg.Recipients(), s.buildMIME(msg))

	status := StatusSent
	if err != nil {
		status = StatusFailed
		s.logger.Warn("邮件发送失败", zap.Strings("to", msg.To), zap.String("subject", msg.Subject), zap.Error(err))
	}
	s.writeLog(ctx, msg, status, err)
	metrics.NotificationsTotal.WithLabelValues(msg.Category, status).Inc()
	return err
}

// buildMIME 构建 HTML 邮件
func (s *EmailService) buildMIME(msg *Message) []byte {
	var buf bytes.Buffer
	from := s.config.FromAddress
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("UTF-8", s.config.FromName), s.config.FromAddress)
	}
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	if len(msg.CC) > 0 {
		fmt.Fprintf(&buf, "Cc: %s\r\n", strings.Join(msg.CC, ", "))
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(msg.HTMLBody)
	return buf.Bytes()
}

// sendWithTLS 465 端口隐式 TLS
func (s *EmailService) sendWithTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.config.Host})
	if err != nil {
		return fmt.Errorf("TLS连接失败: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("创建SMTP客户端失败: %w", err)
	}
	defer client.Close()

	if s.config.Username != "" {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP认证失败: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("设置发件人失败: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("设置收件人失败: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("获取数据写入器失败: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("写入邮件内容失败: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("关闭数据写入器失败: %w", err)
	}
	return client.Quit()
}

func (s *EmailService) writeLog(ctx context.Context, msg *Message, status string, sendErr error) {
	if s.db == nil {
		return
	}
	row := &EmailLog{
		Category:    msg.Category,
		ToAddresses: msg.To,
		CCAddresses: msg.CC,
		Subject:     msg.Subject,
		Status:      status,
		CreatedAt:   time.Now(),
	}
	if sendErr != nil {
		row.ErrorMessage = sendErr.Error()
	} else if status == StatusSent {
		now := time.Now()
		row.SentAt = &now
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		s.logger.Warn("写入邮件日志失败", zap.Error(err))
	}
}
