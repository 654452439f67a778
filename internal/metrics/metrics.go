package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidentdesk_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "incidentdesk_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 表单与审批指标
var (
	// FormSubmissionsTotal 表单提交数，按表单编码与初始审批状态
	FormSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidentdesk_form_submissions_total",
			Help: "表单提交总数",
		},
		[]string{"form_code", "status_approve"},
	)

	// ApprovalDecisionsTotal 审批动作数
	ApprovalDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidentdesk_approval_decisions_total",
			Help: "审批动作总数",
		},
		[]string{"form_code", "action", "outcome"},
	)

	// ApprovalPendingGauge 处于审批中的提交数
	ApprovalPendingGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "incidentdesk_approval_pending",
			Help: "待审批的表单提交数",
		},
		[]string{"form_code"},
	)

	// SequenceAllocationsTotal 单据编号分配次数
	SequenceAllocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidentdesk_sequence_allocations_total",
			Help: "单据编号分配总数",
		},
		[]string{"kind"},
	)

	// NotificationsTotal 通知投递结果
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidentdesk_notifications_total",
			Help: "通知投递总数",
		},
		[]string{"event", "status"},
	)

	// CasePriorityTotal 案件优先级判定次数
	CasePriorityTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidentdesk_case_priority_total",
			Help: "案件优先级判定总数",
		},
		[]string{"kind", "priority"},
	)
)
