// Package metrics 提供 Prometheus helper，包含 HTTP、发件箱与 Saga 相关指标模板
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wyfcoding/orderfulfillment/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal prometheus.Counter
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 发件箱成功发布的行数
	OutboxPublishedTotal prometheus.Counter
	// 发件箱发布失败的行数
	OutboxFailedTotal prometheus.Counter

	// 库存预占结果计数，按 outcome=ok/insufficient/duplicate 区分
	ReservationsTotal *prometheus.CounterVec
	// 库存补偿释放计数
	ReleasesTotal prometheus.Counter
	// 投影实际应用的事件数
	ProjectionsAppliedTotal prometheus.Counter
	// 投影因台账去重跳过的事件数
	ProjectionsDuplicateTotal prometheus.Counter

	// 订单终态计数，按 status=confirmed/cancelled 区分
	OrdersResolvedTotal *prometheus.CounterVec
	// 转入死信主题的消息数
	DeadLetteredTotal prometheus.Counter
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	subsystem := strings.ReplaceAll(serviceName, "-", "_")

	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fulfillment",
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		OutboxPublishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Subsystem: subsystem,
			Name:      "outbox_published_total",
			Help:      "Outbox events published successfully",
		}),
		OutboxFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Subsystem: subsystem,
			Name:      "outbox_failed_total",
			Help:      "Outbox events marked failed",
		}),
		ReservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Subsystem: subsystem,
			Name:      "stock_reservations_total",
			Help:      "Stock reservation attempts by outcome",
		}, []string{"outcome"}),
		ReleasesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Subsystem: subsystem,
			Name:      "stock_releases_total",
			Help:      "Compensating stock releases applied",
		}),
		ProjectionsAppliedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Subsystem: subsystem,
			Name:      "projections_applied_total",
			Help:      "Outbox events projected into durable inventory",
		}),
		ProjectionsDuplicateTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Subsystem: subsystem,
			Name:      "projections_duplicate_total",
			Help:      "Outbox events skipped by the dedup ledger",
		}),
		OrdersResolvedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Subsystem: subsystem,
			Name:      "orders_resolved_total",
			Help:      "Orders reaching a terminal status",
		}, []string{"status"}),
		DeadLetteredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Subsystem: subsystem,
			Name:      "dead_lettered_total",
			Help:      "Messages routed to a dead-letter topic",
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OutboxPublishedTotal,
		m.OutboxFailedTotal,
		m.ReservationsTotal,
		m.ReleasesTotal,
		m.ProjectionsAppliedTotal,
		m.ProjectionsDuplicateTotal,
		m.OrdersResolvedTotal,
		m.DeadLetteredTotal,
	}
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return nil
}

// StartHTTPServer 启动指标 HTTP 服务
func StartHTTPServer(port int, path string) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	go func() {
		addr := fmt.Sprintf(":%d", port)
		logger.Info(context.Background(), "Metrics server listening", "addr", addr, "path", path)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error(context.Background(), "Metrics server error", "error", err)
		}
	}()
	return nil
}
