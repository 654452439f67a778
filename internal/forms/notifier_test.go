package forms

import (
	"context"
	"sync"
	"testing"
	"time"

	"incidentdesk/internal/config"
	"incidentdesk/internal/notification"
	"incidentdesk/internal/worker/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outbox struct {
	mu   sync.Mutex
	sent []*notification.Message
}

func (o *outbox) Send(_ context.Context, msg *notification.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func newTestNotifier(f *fixture) (*Notifier, *outbox) {
	box := &outbox{}
	n := NewNotifier(f.db, f.dir, f.resolver, box,
		config.NotificationConfig{SystemURL: "https://desk.example.com/"}, "ops@example.com")
	return n, box
}

func TestNotifierDeliver(t *testing.T) {
	f := setupFixture(t)
	form := f.createITForm(t)
	ctx := context.Background()
	n, box := newTestNotifier(f)

	res, err := f.engine.Submit(ctx, &SubmitInput{FormCode: "IT-001", CreatedBy: "E003", Values: itAnswers(t, form)})
	require.NoError(t, err)

	require.NoError(t, n.Deliver(ctx, tasks.FormNotificationPayload{
		Event: tasks.EventSubmitted, SubmissionID: res.SubmissionID, FormID: res.FormID,
	}))
	require.Len(t, box.sent, 1)
	msg := box.sent[0]
	assert.Equal(t, []string{"it3@example.com"}, msg.To)
	assert.Equal(t, []string{"it7@example.com", "ops@example.com"}, msg.CC, "抄送当前步骤审批人与运维邮箱")
	assert.Equal(t, "[แบบฟอร์ม] IT-001-2025-0001", msg.Subject)
	assert.Contains(t, msg.HTMLBody, "https://desk.example.com/mytickets/IT-001-2025-0001")
	assert.Contains(t, msg.HTMLBody, "Somchai Dee")

	require.NoError(t, n.Deliver(ctx, tasks.FormNotificationPayload{
		Event: tasks.EventRejected, SubmissionID: res.SubmissionID, FormID: res.FormID, Remark: "no budget",
	}))
	require.Len(t, box.sent, 2)
	assert.Equal(t, []string{"ops@example.com"}, box.sent[1].CC)
	assert.Contains(t, box.sent[1].HTMLBody, "no budget")

	t.Run("提交不存在时跳过", func(t *testing.T) {
		require.NoError(t, n.Deliver(ctx, tasks.FormNotificationPayload{Event: tasks.EventDone, SubmissionID: 9999}))
		assert.Len(t, box.sent, 2)
	})

	t.Run("未知事件", func(t *testing.T) {
		assert.Error(t, n.Deliver(ctx, tasks.FormNotificationPayload{Event: "archived", SubmissionID: res.SubmissionID}))
	})
}

func TestNotifierRemindStale(t *testing.T) {
	f := setupFixture(t)
	form := f.createITForm(t)
	ctx := context.Background()
	n, box := newTestNotifier(f)

	pending, err := f.engine.Submit(ctx, &SubmitInput{FormCode: "IT-001", CreatedBy: "E003", Values: itAnswers(t, form)})
	require.NoError(t, err)
	_, err = f.engine.Submit(ctx, &SubmitInput{FormCode: "IT-001", CreatedBy: "E008", Values: itAnswers(t, form)})
	require.NoError(t, err)

	n.now = func() time.Time { return time.Now().Add(72 * time.Hour) }
	sent, err := n.RemindStale(ctx, 48)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, box.sent, 1)
	assert.Equal(t, []string{"it7@example.com"}, box.sent[0].To)
	assert.Equal(t, Subject(pending.FormID), box.sent[0].Subject)

	n.now = time.Now
	sent, err = n.RemindStale(ctx, 48)
	require.NoError(t, err)
	assert.Zero(t, sent, "未超时的提交不提醒")
}
