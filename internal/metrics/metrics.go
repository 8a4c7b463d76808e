// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、プロバイダークライアント、会員サービスから利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordProviderCall(operation, outcome string, duration time.Duration)
	RecordMembershipFallback()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus         *prometheus.CounterVec
	providerCalls      *prometheus.CounterVec
	providerLatency    *prometheus.HistogramVec
	membershipFallback prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "baasproxy_http_requests_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "baasproxy_provider_requests_total",
			Help: "プロバイダー呼び出しの操作・結果別の合計数",
		}, []string{"operation", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "baasproxy_provider_latency_seconds",
			Help:    "プロバイダー呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		membershipFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "baasproxy_membership_fallback_total",
			Help: "is_premium列なしで再検索した回数",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.providerCalls,
		c.providerLatency,
		c.membershipFallback,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordProviderCall はプロバイダー呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordProviderCall(operation, outcome string, duration time.Duration) {
	c.providerCalls.WithLabelValues(operation, outcome).Inc()
	c.providerLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordMembershipFallback は任意列フォールバックの発生を記録する。
func (c *Collector) RecordMembershipFallback() {
	c.membershipFallback.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 一部のコレクターが失敗しても、取得できたメトリクスは返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
}
