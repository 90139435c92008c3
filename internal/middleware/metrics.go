package middleware

import (
	"net/http"
	"time"
)

// StatusRecorder はHTTPレスポンスのメトリクス記録インターフェース。
// metrics.Collectorが実装する。
type StatusRecorder interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// NewMetricsMiddleware はレスポンスのステータスコードと処理時間を記録するミドルウェアを返す。
func NewMetricsMiddleware(recorder StatusRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := wrapResponse(w, r)

			next.ServeHTTP(ww, r)

			recorder.RecordHTTPStatus(responseStatus(ww))
			recorder.RecordRequestLatency(time.Since(start))
		})
	}
}
