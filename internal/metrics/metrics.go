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
// サービス層、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordSignupCreated()
	RecordSignupRejected(reason string)
	RecordSignupDeleted(alreadyAbsent bool)
	RecordParticipantCreated()
	RecordSignupsPurged(count int64)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

var _ MetricsCollector = (*Collector)(nil)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signupCreated      prometheus.Counter
	signupRejected     *prometheus.CounterVec
	signupDeleted      *prometheus.CounterVec
	participantCreated prometheus.Counter
	signupsPurged      prometheus.Counter
	httpStatus         *prometheus.CounterVec
	requestLatency     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signupCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teeup_signup_created_total",
			Help: "作成された申込の合計数",
		}),
		signupRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teeup_signup_rejected_total",
			Help: "拒否された申込の理由別の合計数",
		}, []string{"reason"}),
		signupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teeup_signup_deleted_total",
			Help: "申込削除リクエストの合計数（already_absent=既に存在しなかった）",
		}, []string{"already_absent"}),
		participantCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teeup_participant_created_total",
			Help: "作成された参加者の合計数",
		}),
		signupsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teeup_signups_purged_total",
			Help: "保持期間切れで削除された申込の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teeup_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "teeup_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.signupCreated,
		c.signupRejected,
		c.signupDeleted,
		c.participantCreated,
		c.signupsPurged,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordSignupCreated は申込作成を記録する。
func (c *Collector) RecordSignupCreated() {
	c.signupCreated.Inc()
}

// RecordSignupRejected は申込の拒否を理由別に記録する。
func (c *Collector) RecordSignupRejected(reason string) {
	c.signupRejected.WithLabelValues(reason).Inc()
}

// RecordSignupDeleted は申込削除を記録する。
func (c *Collector) RecordSignupDeleted(alreadyAbsent bool) {
	c.signupDeleted.WithLabelValues(strconv.FormatBool(alreadyAbsent)).Inc()
}

// RecordParticipantCreated は参加者作成を記録する。
func (c *Collector) RecordParticipantCreated() {
	c.participantCreated.Inc()
}

// RecordSignupsPurged は保持期間切れで削除した申込数を記録する。
func (c *Collector) RecordSignupsPurged(count int64) {
	c.signupsPurged.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

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
