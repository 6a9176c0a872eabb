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
// ゲート、ログインフロー、RPC層から利用する。
type MetricsCollector interface {
	RecordLoginAction(action, outcome string)
	RecordGateDecision(decision string)
	RecordRPCCall(path, code string)
	RecordProviderLatency(operation string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// ゲート判定のラベル値
const (
	GatePass     = "pass"
	GateRedirect = "redirect"
	GateBypass   = "bypass"
	GateDisabled = "disabled"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginActions    *prometheus.CounterVec
	gateDecisions   *prometheus.CounterVec
	rpcCalls        *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maltresponse_login_actions_total",
			Help: "ログインアクションの実行数（アクション・結果別）",
		}, []string{"action", "outcome"}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maltresponse_gate_decisions_total",
			Help: "セッションゲートの判定数",
		}, []string{"decision"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maltresponse_rpc_calls_total",
			Help: "RPCプロシージャの呼び出し数（パス・結果コード別）",
		}, []string{"path", "code"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "maltresponse_provider_request_seconds",
			Help:    "認証プロバイダー呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maltresponse_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.loginActions,
		c.gateDecisions,
		c.rpcCalls,
		c.providerLatency,
		c.httpStatus,
	)

	return c
}

// RecordLoginAction はログインアクションの結果を記録する。
func (c *Collector) RecordLoginAction(action, outcome string) {
	c.loginActions.WithLabelValues(action, outcome).Inc()
}

// RecordGateDecision はゲートの判定を記録する。
func (c *Collector) RecordGateDecision(decision string) {
	c.gateDecisions.WithLabelValues(decision).Inc()
}

// RecordRPCCall はRPC呼び出しの結果を記録する。成功時のcodeは "OK"。
func (c *Collector) RecordRPCCall(path, code string) {
	c.rpcCalls.WithLabelValues(path, code).Inc()
}

// RecordProviderLatency はプロバイダー呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(operation string, duration time.Duration) {
	c.providerLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordLoginAction(string, string) {}
func (Nop) RecordGateDecision(string) {}
func (Nop) RecordRPCCall(string, string) {}
func (Nop) RecordProviderLatency(string, time.Duration) {}
func (Nop) RecordHTTPStatus(int) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
