package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/mealplanner/internal/metrics"
	"github.com/hitoshi/mealplanner/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Verifier          middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 監視
	HealthChecker HealthChecker
	Metrics       *metrics.Collector
	Gatherer      prometheus.Gatherer

	// オンボーディング
	OnboardingService OnboardingServiceInterface

	// 在庫
	PantryService PantryServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → (Metrics) → BearerAuth → RateLimit(General)
//
// /health と /metrics は認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Instrument)
	}

	onboardingHandler := NewOnboardingHandler(deps.OnboardingService)
	pantryHandler := NewPantryHandler(deps.PantryService)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: BearerAuth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.Verifier, logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// POST /api/complete-onboarding - IdPへの書き込みを伴うため専用レート制限を追加
		r.With(deps.RateLimiter.OnboardingMiddleware()).Post("/api/complete-onboarding", onboardingHandler.CompleteOnboarding)

		r.Route("/api/pantry", func(r chi.Router) {
			r.Get("/", pantryHandler.ListItems)
			r.Post("/", pantryHandler.CreateItem)
			r.Get("/expiring", pantryHandler.ListExpiring)
			r.Post("/clear-expiring", pantryHandler.ClearExpiring)

			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", pantryHandler.UpdateItem)
				r.Delete("/", pantryHandler.DeleteItem)
			})
		})
	})

	return r
}
