package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"incidentdesk/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap/zaptest"
)

type fakeNotifier struct {
	got    []tasks.FormNotificationPayload
	retErr error
}

func (f *fakeNotifier) Deliver(ctx context.Context, p tasks.FormNotificationPayload) error {
	f.got = append(f.got, p)
	return f.retErr
}

type fakeReminder struct {
	staleHours int
	sent       int
	retErr     error
}

func (f *fakeReminder) RemindStale(ctx context.Context, staleHours int) (int, error) {
	f.staleHours = staleHours
	return f.sent, f.retErr
}

func TestHandleFormNotification_Success(t *testing.T) {
	notifier := &fakeNotifier{}
	h := NewFormHandler(notifier, &fakeReminder{}, zaptest.NewLogger(t))
	payload, _ := json.Marshal(tasks.FormNotificationPayload{Event: tasks.EventApproved, FormID: "IT-001-2025-0001", SubmissionID: 7})
	task := asynq.NewTask(tasks.TypeFormNotification, payload)
	if err := h.HandleFormNotification(context.Background(), task); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(notifier.got) != 1 || notifier.got[0].SubmissionID != 7 || notifier.got[0].Event != tasks.EventApproved {
		t.Fatalf("notifier not invoked correctly: %+v", notifier.got)
	}
}

func TestHandleFormNotification_DeliverError(t *testing.T) {
	expectedErr := errors.New("smtp down")
	h := NewFormHandler(&fakeNotifier{retErr: expectedErr}, &fakeReminder{}, zaptest.NewLogger(t))
	payload, _ := json.Marshal(tasks.FormNotificationPayload{Event: tasks.EventSubmitted, FormID: "F-1"})
	task := asynq.NewTask(tasks.TypeFormNotification, payload)
	if err := h.HandleFormNotification(context.Background(), task); !errors.Is(err, expectedErr) {
		t.Fatalf("expected error %v, got %v", expectedErr, err)
	}
}

func TestHandleFormNotification_InvalidPayload(t *testing.T) {
	notifier := &fakeNotifier{}
	h := NewFormHandler(notifier, &fakeReminder{}, zaptest.NewLogger(t))
	task := asynq.NewTask(tasks.TypeFormNotification, []byte("not-json"))
	err := h.HandleFormNotification(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for invalid payload, got %v", err)
	}
	if len(notifier.got) != 0 {
		t.Fatalf("notifier should not be called")
	}
}

func TestHandleApprovalReminder(t *testing.T) {
	reminder := &fakeReminder{sent: 3}
	h := NewFormHandler(&fakeNotifier{}, reminder, zaptest.NewLogger(t))
	payload, _ := json.Marshal(tasks.ApprovalReminderPayload{StaleHours: 24})
	if err := h.HandleApprovalReminder(context.Background(), asynq.NewTask(tasks.TypeApprovalReminder, payload)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if reminder.staleHours != 24 {
		t.Fatalf("expected stale hours 24, got %d", reminder.staleHours)
	}

	reminder.retErr = errors.New("db down")
	if err := h.HandleApprovalReminder(context.Background(), asynq.NewTask(tasks.TypeApprovalReminder, payload)); !errors.Is(err, reminder.retErr) {
		t.Fatalf("expected run error, got %v", err)
	}

	if err := h.HandleApprovalReminder(context.Background(), asynq.NewTask(tasks.TypeApprovalReminder, []byte("{"))); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}
