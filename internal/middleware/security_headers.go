package middleware

import "net/http"

// NewSecurityHeadersMiddleware は全レスポンスに固定のヘッダーを付ける。
// 申込状況は数秒で変わるため、ブラウザや中間プロキシにもキャッシュさせない。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	headers := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
		"Cache-Control":          "no-store",
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range headers {
				h.Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}
