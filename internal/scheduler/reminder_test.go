package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"incidentdesk/internal/config"
	"incidentdesk/internal/worker/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeQueue struct {
	mu       sync.Mutex
	payloads []tasks.ApprovalReminderPayload
	err      error
}

func (q *fakeQueue) EnqueueApprovalReminder(p tasks.ApprovalReminderPayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.payloads = append(q.payloads, p)
	return q.err
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.payloads)
}

func TestReminderScheduler(t *testing.T) {
	t.Run("无效表达式", func(t *testing.T) {
		_, err := NewReminderScheduler(config.ReminderConfig{Spec: "every day"}, &fakeQueue{}, zaptest.NewLogger(t))
		require.Error(t, err)
	})

	t.Run("手动入队携带过期小时数", func(t *testing.T) {
		q := &fakeQueue{}
		s, err := NewReminderScheduler(config.ReminderConfig{Spec: "0 0 8 * * *", StaleHours: 24}, q, zaptest.NewLogger(t))
		require.NoError(t, err)
		s.Enqueue()
		require.Equal(t, 1, q.count())
		assert.Equal(t, 24, q.payloads[0].StaleHours)
	})

	t.Run("入队失败不中断调度", func(t *testing.T) {
		q := &fakeQueue{err: errors.New("redis down")}
		s, err := NewReminderScheduler(config.ReminderConfig{Spec: "0 0 8 * * *"}, q, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.NotPanics(t, s.Enqueue)
	})

	t.Run("按秒级表达式触发", func(t *testing.T) {
		q := &fakeQueue{}
		s, err := NewReminderScheduler(config.ReminderConfig{Spec: "* * * * * *", StaleHours: 48}, q, zaptest.NewLogger(t))
		require.NoError(t, err)
		s.Start()
		s.Start()
		require.Eventually(t, func() bool { return q.count() > 0 }, 3*time.Second, 50*time.Millisecond)
		s.Stop()
		s.Stop()
	})
}
