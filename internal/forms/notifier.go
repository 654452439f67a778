package forms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"incidentdesk/internal/config"
	"incidentdesk/internal/logger"
	"incidentdesk/internal/notification"
	"incidentdesk/internal/org"
	"incidentdesk/internal/worker/tasks"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifier 组装并发送表单状态邮件
type Notifier struct {
	db       *gorm.DB
	dir      *org.Directory
	resolver *Resolver
	mailer   notification.Mailer
	cfg      config.NotificationConfig
	ops      string
	logger   *zap.Logger
	now      func() time.Time
}

// NewNotifier 创建通知组装器；opsMailbox 为每封邮件的固定抄送
func NewNotifier(db *gorm.DB, dir *org.Directory, resolver *Resolver, mailer notification.Mailer, cfg config.NotificationConfig, opsMailbox string) *Notifier {
	return &Notifier{
		db:       db,
		dir:      dir,
		resolver: resolver,
		mailer:   mailer,
		cfg:      cfg,
		ops:      opsMailbox,
		logger:   logger.L(),
		now:      time.Now,
	}
}

// Deliver 处理一条通知任务
func (n *Notifier) Deliver(ctx context.Context, p tasks.FormNotificationPayload) error {
	var sub FormSubmission
	err := n.db.WithContext(ctx).Preload("Form").First(&sub, p.SubmissionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		n.logger.Warn("通知对应的提交不存在，跳过", zap.String("form_id", p.FormID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("查询提交失败: %w", err)
	}

	creator, err := n.dir.UserByEmployeeID(ctx, sub.CreatedBy)
	if err != nil {
		if errors.Is(err, org.ErrUserNotFound) {
			n.logger.Warn("申请人不存在，跳过通知", zap.String("form_id", sub.FormID))
			return nil
		}
		return err
	}
	if creator.Email == "" {
		n.logger.Warn("申请人无邮箱，跳过通知", zap.String("form_id", sub.FormID))
		return nil
	}

	var tmpl string
	cc := []string{}
	switch p.Event {
	case tasks.EventSubmitted:
		tmpl = notification.TemplateFormSubmitted
		approvers, err := n.currentApprovers(ctx, &sub, creator)
		if err != nil {
			return err
		}
		cc = append(cc, approvers...)
	case tasks.EventApproved:
		tmpl = notification.TemplateFormApproved
	case tasks.EventRejected:
		tmpl = notification.TemplateFormRejected
	case tasks.EventDone:
		tmpl = notification.TemplateFormDone
	default:
		return fmt.Errorf("未知通知事件: %s", p.Event)
	}
	if n.ops != "" {
		cc = append(cc, n.ops)
	}

	body, err := notification.Render(tmpl, n.mailData(&sub, creator, p.Remark))
	if err != nil {
		return err
	}
	return n.mailer.Send(ctx, &notification.Message{
		To:       []string{creator.Email},
		CC:       cc,
		Subject:  Subject(sub.FormID),
		HTMLBody: body,
		Category: p.Event,
	})
}

// RemindStale 提醒审批人处理超过 staleHours 未变化的审批中提交，返回发送封数
func (n *Notifier) RemindStale(ctx context.Context, staleHours int) (int, error) {
	if staleHours <= 0 {
		staleHours = 48
	}
	cutoff := n.now().Add(-time.Duration(staleHours) * time.Hour)

	var subs []FormSubmission
	if err := n.db.WithContext(ctx).Preload("Form").
		Where("status_approve = ? AND current_approval_level IS NOT NULL AND updated_at < ?", ApproveInProgress, cutoff).
		Order("id").Find(&subs).Error; err != nil {
		return 0, fmt.Errorf("查询待提醒提交失败: %w", err)
	}

	sent := 0
	for i := range subs {
		sub := &subs[i]
		creator, err := n.dir.UserByEmployeeID(ctx, sub.CreatedBy)
		if err != nil {
			n.logger.Warn("提醒跳过：申请人不存在", zap.String("form_id", sub.FormID))
			continue
		}
		approvers, err := n.currentApprovers(ctx, sub, creator)
		if err != nil {
			return sent, err
		}
		if len(approvers) == 0 {
			continue
		}

		data := n.mailData(sub, creator, "")
		data.PendingSince = sub.UpdatedAt.Format("2006-01-02 15:04")
		body, err := notification.Render(notification.TemplateFormReminder, data)
		if err != nil {
			return sent, err
		}
		if err := n.mailer.Send(ctx, &notification.Message{
			To:       approvers,
			Subject:  Subject(sub.FormID),
			HTMLBody: body,
			Category: "reminder",
		}); err != nil {
			n.logger.Warn("审批提醒发送失败", zap.String("form_id", sub.FormID), zap.Error(err))
			continue
		}
		sent++
	}
	n.logger.Info("审批提醒完成", zap.Int("candidates", len(subs)), zap.Int("sent", sent))
	return sent, nil
}

// currentApprovers 当前步骤全部合格审批人的邮箱
func (n *Notifier) currentApprovers(ctx context.Context, sub *FormSubmission, creator *org.User) ([]string, error) {
	if sub.StatusApprove != ApproveInProgress || sub.CurrentApprovalLevel == nil {
		return nil, nil
	}
	level, err := n.dir.LevelOf(ctx, creator)
	if err != nil || level == nil {
		return nil, err
	}
	rule, err := n.resolver.Resolve(ctx, nil, sub.FormMasterID, *level, *sub.CurrentApprovalLevel)
	if err != nil || rule == nil {
		return nil, err
	}
	users, err := n.dir.EligibleApprovers(ctx, rule.Criteria(), creator)
	if err != nil {
		return nil, err
	}
	emails := make([]string, 0, len(users))
	for _, u := range users {
		if u.Email != "" {
			emails = append(emails, u.Email)
		}
	}
	return emails, nil
}

func (n *Notifier) mailData(sub *FormSubmission, creator *org.User, remark string) notification.FormMailData {
	data := notification.FormMailData{
		FormID:        sub.FormID,
		RequesterName: creator.FullName(),
		Remark:        remark,
		SystemURL:     TicketURL(n.cfg.SystemURL, sub.FormID),
	}
	if sub.Form != nil {
		data.FormName = sub.Form.FormName
	}
	if sub.CurrentApprovalLevel != nil {
		data.Level = *sub.CurrentApprovalLevel
	}
	return data
}

// Subject 表单邮件主题
func Subject(formID string) string {
	return "[แบบฟอร์ม] " + formID
}

// TicketURL 提交详情页链接
func TicketURL(systemURL, formID string) string {
	return strings.TrimRight(systemURL, "/") + "/mytickets/" + formID
}
