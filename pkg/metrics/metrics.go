// Package metrics 提供 Prometheus helper，包含服务通用指标与执行引擎业务指标
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/tradingterminal/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal prometheus.Counter
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 数据库查询计数
	DBQueriesTotal prometheus.Counter
	// 数据库查询耗时
	DBQueryDuration prometheus.Histogram

	// 活跃执行循环数
	OrderLoopsActive prometheus.Gauge
	// 高级订单提交计数
	OrdersSubmittedTotal prometheus.Counter
	// 执行记录计数（按 action 分类）
	ExecutionsTotal *prometheus.CounterVec
	// 订单终态计数（按 status 分类）
	OrdersFinishedTotal *prometheus.CounterVec
	// 网关调用耗时
	GatewayCallDuration prometheus.Histogram
	// 网关错误计数（按类型分类）
	GatewayErrorsTotal *prometheus.CounterVec
	// 网关重试计数
	GatewayRetriesTotal prometheus.Counter
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		DBQueriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "db_queries_total",
			Help:      "Total database queries",
		}),
		DBQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		OrderLoopsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "order_loops_active",
			Help:      "Number of active order execution loops",
		}),
		OrdersSubmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "orders_submitted_total",
			Help:      "Total advanced orders accepted",
		}),
		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "executions_total",
			Help:      "Total child execution records appended",
		}, []string{"action"}),
		OrdersFinishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "orders_finished_total",
			Help:      "Total advanced orders reaching a terminal status",
		}, []string{"status"}),
		GatewayCallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "gateway_call_duration_seconds",
			Help:      "Exchange gateway call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		GatewayErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "gateway_errors_total",
			Help:      "Total exchange gateway call failures",
		}, []string{"kind"}),
		GatewayRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "gateway_retries_total",
			Help:      "Total retried exchange gateway calls",
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DBQueriesTotal,
		m.DBQueryDuration,
		m.OrderLoopsActive,
		m.OrdersSubmittedTotal,
		m.ExecutionsTotal,
		m.OrdersFinishedTotal,
		m.GatewayCallDuration,
		m.GatewayErrorsTotal,
		m.GatewayRetriesTotal,
	}

	for _, c := range collectors {
		if err := prometheus.DefaultRegisterer.Register(c); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func StartHTTPServer(port int, path string) error {
	if path == "" {
		path = "/metrics"
	}

	http.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Error(context.Background(), "Failed to start Prometheus HTTP server", "error", err)
		}
	}()

	return nil
}
