package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/teeup/internal/middleware"
	"github.com/hitoshi/teeup/internal/participant"
	"github.com/hitoshi/teeup/internal/signup"
)

// --- compile-time interface checks ---

var _ ParticipantServiceInterface = (*participant.Service)(nil)
var _ SignupServiceInterface = (*signup.Service)(nil)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ドメインサービス
	ParticipantService ParticipantServiceInterface
	SignupService      SignupServiceInterface

	// ヘルスチェック（nilの場合は疎通確認をしない）
	HealthChecker HealthChecker

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter // nilの場合はレート制限なし
	Logger            *slog.Logger            // nilの場合はslog.Default()

	// メトリクス（nilの場合は記録しない、/metricsも公開しない）
	Metrics        middleware.StatusRecorder
	MetricsHandler http.Handler

	// Now は表示範囲の基準時刻。nilの場合はtime.Now。
	Now func() time.Time
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → Metrics → SecurityHeaders → CORS
//	→ RateLimit(General) → RateLimit(Write)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	participantHandler := NewParticipantHandler(deps.ParticipantService)
	signupHandler := NewSignupHandler(deps.SignupService, deps.Now)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker, 2*time.Second))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- API ---
	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
			r.Use(deps.RateLimiter.WriteMiddleware())
		}

		// 参加者管理
		r.Route("/participants", func(r chi.Router) {
			r.Get("/", participantHandler.ListParticipants)
			r.Post("/", participantHandler.CreateParticipant)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", participantHandler.GetParticipant)
				r.Put("/", participantHandler.UpdateParticipant)
				r.Delete("/", participantHandler.DeleteParticipant)
				r.Get("/signups", signupHandler.ListParticipantSignups)
			})
		})

		// 申込管理
		r.Route("/signups", func(r chi.Router) {
			r.Get("/", signupHandler.ListSignups)
			r.Post("/", signupHandler.CreateSignup)
			r.Delete("/", signupHandler.DeleteSignup)
		})
	})

	return r
}
