package forms

import (
	"sync"
	"time"
)

// 提交事件类型
const (
	EventSubmitted     = "submitted"
	EventStepApproved  = "approved-step"
	EventApproved      = "approved"
	EventRejected      = "rejected"
	EventStatusChanged = "status-changed"
)

// SubmissionEvent 描述提交的审批或状态变化
type SubmissionEvent struct {
	FormID        string    `json:"form_id"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	StatusApprove string    `json:"status_approve"`
	CurrentLevel  *int      `json:"current_level"`
	Actor         string    `json:"actor,omitempty"`
	Remark        string    `json:"remark,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// EventBus 进程内事件总线，按 form_id 订阅
type EventBus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]chan SubmissionEvent
	seq    uint64
	buffer int
}

// NewEventBus 创建事件总线
func NewEventBus(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = 1
	}
	return &EventBus{
		subs:   make(map[string]map[uint64]chan SubmissionEvent),
		buffer: buffer,
	}
}

// Publish 发布事件，接收方处理慢时丢弃，保持非阻塞
func (b *EventBus) Publish(evt SubmissionEvent) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[evt.FormID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribe 订阅指定提交的事件，返回取消函数
func (b *EventBus) Subscribe(formID string) (<-chan SubmissionEvent, func()) {
	ch := make(chan SubmissionEvent, b.buffer)
	b.mu.Lock()
	b.seq++
	id := b.seq
	if _, ok := b.subs[formID]; !ok {
		b.subs[formID] = make(map[uint64]chan SubmissionEvent)
	}
	b.subs[formID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.removeListener(formID, id) })
	}
}

// Subscribers 当前订阅数
func (b *EventBus) Subscribers(formID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[formID])
}

func (b *EventBus) removeListener(formID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if listeners, ok := b.subs[formID]; ok {
		if ch, exists := listeners[id]; exists {
			delete(listeners, id)
			close(ch)
		}
		if len(listeners) == 0 {
			delete(b.subs, formID)
		}
	}
}
