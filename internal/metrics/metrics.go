// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// idp.Recorder、onboarding.Recorder、cleanup.PurgeRecorderを満たす。
type Collector struct {
	tokenFetch     *prometheus.CounterVec
	tokenCacheHit  prometheus.Counter
	tokenCoalesced prometheus.Counter
	metadataWrite  *prometheus.CounterVec
	idpLatency     *prometheus.HistogramVec
	onboarding     *prometheus.CounterVec
	pantryPurged   prometheus.Counter
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tokenFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mealplanner_idp_token_fetch_total",
			Help: "管理APIトークン取得の試行数（結果別）",
		}, []string{"result"}),
		tokenCacheHit: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mealplanner_idp_token_cache_hit_total",
			Help: "キャッシュ済みトークンで応答した回数",
		}),
		tokenCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mealplanner_idp_token_coalesced_total",
			Help: "実行中の取得結果を共有した呼び出し数",
		}),
		metadataWrite: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mealplanner_idp_metadata_write_total",
			Help: "IdPメタデータ書き込みの回数（結果別）",
		}, []string{"result"}),
		idpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mealplanner_idp_request_duration_seconds",
			Help:    "IdP呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		onboarding: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mealplanner_onboarding_completion_total",
			Help: "オンボーディング完了リクエストの回数（結果別）",
		}, []string{"outcome"}),
		pantryPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mealplanner_pantry_purged_total",
			Help: "自動削除された在庫の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mealplanner_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.tokenFetch,
		c.tokenCacheHit,
		c.tokenCoalesced,
		c.metadataWrite,
		c.idpLatency,
		c.onboarding,
		c.pantryPurged,
		c.httpStatus,
	)

	return c
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordTokenFetch はトークン取得の結果を記録する。
func (c *Collector) RecordTokenFetch(success bool) {
	c.tokenFetch.WithLabelValues(result(success)).Inc()
}

// RecordTokenCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordTokenCacheHit() {
	c.tokenCacheHit.Inc()
}

// RecordTokenCoalesced は取得の合流を記録する。
func (c *Collector) RecordTokenCoalesced() {
	c.tokenCoalesced.Inc()
}

// RecordMetadataWrite はメタデータ書き込みの結果を記録する。
func (c *Collector) RecordMetadataWrite(success bool) {
	c.metadataWrite.WithLabelValues(result(success)).Inc()
}

// ObserveIdPLatency はIdP呼び出しのレイテンシを記録する。
func (c *Collector) ObserveIdPLatency(operation string, d time.Duration) {
	c.idpLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordOnboardingCompletion はオンボーディング完了の結果を記録する。
func (c *Collector) RecordOnboardingCompletion(outcome string) {
	c.onboarding.WithLabelValues(outcome).Inc()
}

// RecordPantryPurged は自動削除された在庫数を記録する。
func (c *Collector) RecordPantryPurged(count int64) {
	c.pantryPurged.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Instrument はレスポンスのステータスコードを記録するミドルウェアを返す。
func (c *Collector) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		c.RecordHTTPStatus(sw.status)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute はworkerプロセス用の独立したメトリクスサーバーのルートを返す。
// /metricsに加えて、死活監視用の/healthを提供する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler(gatherer))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}
