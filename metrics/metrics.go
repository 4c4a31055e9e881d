// Package metrics は外向きリモート呼び出しのPrometheusメトリクスを提供する。
//
// ライブラリ自身はHTTPサーバーを持たないため、コレクターは呼び出し側の
// レジストリに登録し、公開は呼び出し側のアプリケーションが行う。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はXML-RPC呼び出しとフィード取得のメトリクスを収集する。
// xmlrpc.Metricsとgdata.Metricsの両方を実装する。
type Collector struct {
	callSuccess *prometheus.CounterVec
	callFail    *prometheus.CounterVec
	callLatency prometheus.Histogram
	loadSuccess prometheus.Counter
	loadFail    *prometheus.CounterVec
	loadLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		callSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kblog_rpc_call_success_total",
			Help: "XML-RPC呼び出し成功のメソッド別合計数",
		}, []string{"method"}),
		callFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kblog_rpc_call_fail_total",
			Help: "XML-RPC呼び出し失敗のメソッド・理由別合計数",
		}, []string{"method", "reason"}),
		callLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kblog_rpc_call_latency_seconds",
			Help:    "XML-RPC呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		loadSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kblog_feed_load_success_total",
			Help: "Atomフィード取得成功の合計数",
		}),
		loadFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kblog_feed_load_fail_total",
			Help: "Atomフィード取得失敗の理由別合計数",
		}, []string{"reason"}),
		loadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kblog_feed_load_latency_seconds",
			Help:    "Atomフィード取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.callSuccess,
		c.callFail,
		c.callLatency,
		c.loadSuccess,
		c.loadFail,
		c.loadLatency,
	)

	return c
}

// RecordCallSuccess はXML-RPC呼び出し成功を記録する。
func (c *Collector) RecordCallSuccess(method string) {
	c.callSuccess.WithLabelValues(method).Inc()
}

// RecordCallFailure はXML-RPC呼び出し失敗を記録する。
// reasonは"fault"または"transport"。
func (c *Collector) RecordCallFailure(method string, reason string) {
	c.callFail.WithLabelValues(method, reason).Inc()
}

// RecordCallLatency はXML-RPC呼び出しのレイテンシを記録する。
func (c *Collector) RecordCallLatency(duration time.Duration) {
	c.callLatency.Observe(duration.Seconds())
}

// RecordLoadSuccess はフィード取得成功を記録する。
func (c *Collector) RecordLoadSuccess() {
	c.loadSuccess.Inc()
}

// RecordLoadFailure はフィード取得失敗を記録する。
// reasonは"fetch"または"parse"。
func (c *Collector) RecordLoadFailure(reason string) {
	c.loadFail.WithLabelValues(reason).Inc()
}

// RecordLoadLatency はフィード取得のレイテンシを記録する。
func (c *Collector) RecordLoadLatency(duration time.Duration) {
	c.loadLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 公開エンドポイントの設置は呼び出し側アプリケーションの責務とする。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
