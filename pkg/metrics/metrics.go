// Package metrics 暴露实例编排相关的 Prometheus 指标，标签里不放 user_id 等高基数字段。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunningInstances = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foundryhost_running_instances",
		Help: "Number of instances currently in the running state.",
	})

	InstancesWithTimer = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foundryhost_instances_with_shutdown_timer",
		Help: "Number of running instances that carry an auto-shutdown deadline.",
	})

	OverdueInstances = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foundryhost_overdue_instances",
		Help: "Number of running instances whose auto-shutdown deadline has passed.",
	})

	NextShutdownSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foundryhost_next_shutdown_seconds",
		Help: "Seconds until the nearest upcoming auto-shutdown, 0 when none.",
	})

	InstanceStopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foundryhost_instance_stops_total",
		Help: "Total number of instance stops, by reason.",
	}, []string{"reason"})

	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foundryhost_sessions_total",
		Help: "Total number of session lifecycle events, by event.",
	}, []string{"event"})

	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foundryhost_actions_total",
		Help: "Total number of dispatched actions, by action and status code.",
	}, []string{"action", "code"})

	NotificationDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foundryhost_notification_deliveries_total",
		Help: "Total number of notification delivery attempts, by result.",
	}, []string{"result"})
)

// 停止原因
const (
	StopReasonUser        = "user"
	StopReasonAutoExpire  = "auto_shutdown"
	StopReasonPreempted   = "preempted"
	StopReasonAdmin       = "admin"
	StopReasonSession     = "session"
	StopReasonMaintenance = "maintenance"
	StopReasonTaskExited  = "task_exited"
)
