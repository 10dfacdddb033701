// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証試行の結果ラベル
const (
	OutcomeSuccess         = "success"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeStoreFailure    = "store_failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービスとミドルウェアから利用する。
type MetricsCollector interface {
	RecordAuthAttempt(operation, outcome string)
	RecordVerifyLatency(duration time.Duration, ok bool)
	RecordStoreFailure(operation string)
	RecordSessionIssued(source string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authAttempts   *prometheus.CounterVec
	verifyLatency  *prometheus.HistogramVec
	storeFailures  *prometheus.CounterVec
	sessionsIssued *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authdemo_auth_attempts_total",
			Help: "認証エンドポイントの試行数（操作・結果別）",
		}, []string{"operation", "outcome"}),
		verifyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authdemo_token_verify_seconds",
			Help:    "IDトークン検証のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		storeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authdemo_store_failures_total",
			Help: "ユーザードキュメントストア呼び出しの失敗数",
		}, []string{"operation"}),
		sessionsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authdemo_sessions_issued_total",
			Help: "発行したセッションCookieの数（発行経路別）",
		}, []string{"source"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authdemo_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.verifyLatency,
		c.storeFailures,
		c.sessionsIssued,
		c.httpStatus,
	)

	return c
}

// RecordAuthAttempt は認証試行を記録する。
func (c *Collector) RecordAuthAttempt(operation, outcome string) {
	c.authAttempts.WithLabelValues(operation, outcome).Inc()
}

// RecordVerifyLatency はトークン検証のレイテンシを記録する。
func (c *Collector) RecordVerifyLatency(duration time.Duration, ok bool) {
	result := "valid"
	if !ok {
		result = "invalid"
	}
	c.verifyLatency.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordStoreFailure はストア呼び出しの失敗を記録する。
func (c *Collector) RecordStoreFailure(operation string) {
	c.storeFailures.WithLabelValues(operation).Inc()
}

// RecordSessionIssued はセッション発行を記録する。
func (c *Collector) RecordSessionIssued(source string) {
	c.sessionsIssued.WithLabelValues(source).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordAuthAttempt(string, string)        {}
func (Nop) RecordVerifyLatency(time.Duration, bool) {}
func (Nop) RecordStoreFailure(string)               {}
func (Nop) RecordSessionIssued(string)              {}
func (Nop) RecordHTTPStatus(int)                    {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
