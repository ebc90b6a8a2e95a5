// Package metrics 提供 Prometheus 指标：HTTP 请求与填报业务计数
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/fundreporting/pkg/logger"
)

// Metrics 指标集合；nil 接收者上的方法均为空操作，便于测试中省略
type Metrics struct {
	registry prometheus.Registerer

	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// 状态迁移计数
	TransitionsTotal *prometheus.CounterVec
	// 被拒绝的操作（按错误码）
	RejectedTotal *prometheus.CounterVec
	// 撤回申请结果
	WithdrawalsTotal *prometheus.CounterVec
	// 新生成的骨架记录
	SkeletonsCreated prometheus.Counter
	// 事件投递
	OutboxPublished prometheus.Counter
	OutboxFailed    prometheus.Counter
	OutboxPending   prometheus.Gauge
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reporting",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reporting",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reporting",
			Subsystem: serviceName,
			Name:      "record_transitions_total",
			Help:      "Record status changes by kind and target status",
		}, []string{"kind", "action", "to"}),
		RejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reporting",
			Subsystem: serviceName,
			Name:      "operations_rejected_total",
			Help:      "Operations rejected by error code",
		}, []string{"operation", "code"}),
		WithdrawalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reporting",
			Subsystem: serviceName,
			Name:      "withdrawal_requests_total",
			Help:      "Withdrawal requests by kind and outcome",
		}, []string{"kind", "outcome"}),
		SkeletonsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reporting",
			Subsystem: serviceName,
			Name:      "skeletons_created_total",
			Help:      "Skeleton records created",
		}),
		OutboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reporting",
			Subsystem: serviceName,
			Name:      "outbox_published_total",
			Help:      "Domain events published",
		}),
		OutboxFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reporting",
			Subsystem: serviceName,
			Name:      "outbox_failed_total",
			Help:      "Domain event publish failures",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reporting",
			Subsystem: serviceName,
			Name:      "outbox_pending",
			Help:      "Events fetched as pending in the last relay pass",
		}),
	}
}

// Register 注册所有指标，reg 为 nil 时使用默认注册器
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TransitionsTotal,
		m.RejectedTotal,
		m.WithdrawalsTotal,
		m.SkeletonsCreated,
		m.OutboxPublished,
		m.OutboxFailed,
		m.OutboxPending,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}
	m.registry = reg

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// NewServer 创建 Prometheus HTTP 服务器，由调用方负责启动与关闭
func NewServer(port int, path string) *http.Server {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTransition 记录状态迁移
func (m *Metrics) RecordTransition(kind, action, to string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(kind, action, to).Inc()
}

// RecordRejected 记录被拒绝的操作
func (m *Metrics) RecordRejected(operation, code string) {
	if m == nil {
		return
	}
	m.RejectedTotal.WithLabelValues(operation, code).Inc()
}

// RecordWithdrawal 记录撤回申请结果
func (m *Metrics) RecordWithdrawal(kind, outcome string) {
	if m == nil {
		return
	}
	m.WithdrawalsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) AddSkeletons(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SkeletonsCreated.Add(float64(n))
}

func (m *Metrics) RecordOutbox(published, failed, pending int) {
	if m == nil {
		return
	}
	m.OutboxPublished.Add(float64(published))
	m.OutboxFailed.Add(float64(failed))
	m.OutboxPending.Set(float64(pending))
}
