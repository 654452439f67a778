package tasks

// Task Types
const (
	TypeFormNotification = "form:notify"
	TypeApprovalReminder = "form:reminder"
)

// 通知事件
const (
	EventSubmitted = "submitted"
	EventApproved  = "approved"
	EventRejected  = "rejected"
	EventDone      = "done"
)

// FormNotificationPayload 表单状态变更通知任务载荷
type FormNotificationPayload struct {
	Event        string `json:"event"`
	SubmissionID uint   `json:"submission_id"`
	FormID       string `json:"form_id"`
	ActorID      string `json:"actor_id,omitempty"`
	Remark       string `json:"remark,omitempty"`
}

// ApprovalReminderPayload 待审批提醒任务载荷
type ApprovalReminderPayload struct {
	StaleHours int `json:"stale_hours"`
}
